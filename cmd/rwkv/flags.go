package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rwkvffi/internal/runtime"
)

var (
	modelPath  string
	prefabPath string
	quantInt8  int64
	quantNF4   int64
	quantSF4   int64
	rescale    int64
	extended   bool
	logLevel   string
	logFormat  string
	debug      bool
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to a .safetensors model",
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "prefab",
			Usage:       "path to a .mcf prefab (overrides --model)",
			Destination: &prefabPath,
		},
		&cli.Int64Flag{
			Name:        "quant-int8",
			Aliases:     []string{"quant"},
			Usage:       "quantize the first N layers to int8",
			Destination: &quantInt8,
		},
		&cli.Int64Flag{
			Name:        "quant-nf4",
			Usage:       "quantize the first N layers to nf4",
			Destination: &quantNF4,
		},
		&cli.Int64Flag{
			Name:        "quant-sf4",
			Usage:       "quantize the first N layers to sf4",
			Destination: &quantSF4,
		},
		&cli.Int64Flag{
			Name:        "rescale",
			Usage:       "halve activations every N layers (0 disables)",
			Destination: &rescale,
		},
		&cli.BoolFlag{
			Name:        "extended",
			Usage:       "install the extended hook table (v6 and v7 only)",
			Destination: &extended,
		},
	}
}

func loadOptions() runtime.LoadOptions {
	return runtime.LoadOptions{
		Int8:     int(quantInt8),
		NF4:      int(quantNF4),
		SF4:      int(quantSF4),
		Rescale:  int(rescale),
		Extended: extended,
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
