package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rwkvffi/internal/logger"
	"github.com/samcharles93/rwkvffi/internal/runtime"
)

func packCmd() *cli.Command {
	var (
		out  string
		name string
	)
	return &cli.Command{
		Name:  "pack",
		Usage: "Convert a .safetensors model into a .mcf prefab with quantization baked in",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output .mcf path (default: model path with .mcf extension)",
				Destination: &out,
			},
			&cli.StringFlag{
				Name:        "name",
				Usage:       "model name recorded in the prefab",
				Destination: &name,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyModelConfig(c, LoadConfig())
			if modelPath == "" {
				return errors.New("--model is required")
			}
			dst, err := resolvePackOut(modelPath, out)
			if err != nil {
				return err
			}
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath))
			}
			if extended {
				logger.FromContext(ctx).Warn("--extended is ignored by pack; pass it when loading the raw model instead")
			}
			return runtime.Pack(ctx, modelPath, dst, name, loadOptions(), logger.FromContext(ctx))
		},
	}
}

// resolvePackOut returns the output path, creating its directory.
func resolvePackOut(in, outFlag string) (string, error) {
	outFlag = strings.TrimSpace(outFlag)
	if outFlag == "" {
		outFlag = strings.TrimSuffix(in, filepath.Ext(in)) + ".mcf"
	}
	outPath := filepath.Clean(outFlag)
	if outPath == filepath.Clean(in) {
		return "", errors.New("output path would overwrite the input model")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	return outPath, nil
}
