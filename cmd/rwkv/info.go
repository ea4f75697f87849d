package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rwkvffi/internal/mcfstore"
	"github.com/samcharles93/rwkvffi/internal/model"
	"github.com/samcharles93/rwkvffi/internal/safetensors"
)

func infoCmd() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Print the detected model info without loading weights",
		Flags: commonModelFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyModelConfig(c, LoadConfig())
			switch {
			case prefabPath != "":
				f, err := mcfstore.Open(prefabPath)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				printInfo(f.Info())
				fmt.Printf("name:       %s\n", f.Name())
				fmt.Printf("rescale:    %d\n", f.Rescale())
				printPlan(f.Info().NumLayer, f.QuantPlan())
				return nil
			case modelPath != "":
				f, err := safetensors.Open(modelPath)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				info, err := model.DetectInfo(f)
				if err != nil {
					return err
				}
				printInfo(info)
				return nil
			}
			return errors.New("--model or --prefab is required")
		},
	}
}

func printInfo(info model.Info) {
	fmt.Printf("version:    %s\n", info.Version)
	fmt.Printf("layers:     %d\n", info.NumLayer)
	fmt.Printf("emb:        %d\n", info.NumEmb)
	fmt.Printf("hidden:     %d\n", info.NumHidden)
	fmt.Printf("vocab:      %d\n", info.NumVocab)
	fmt.Printf("heads:      %d\n", info.NumHead)
	fmt.Printf("state size: %d\n", info.StateLen())
}

func printPlan(numLayer int, plan model.QuantPlan) {
	for l := range numLayer {
		if q := plan.For(l); q != model.QuantNone {
			fmt.Printf("layer %-4d  %s\n", l, q)
		}
	}
}
