package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rwkvffi/internal/logger"
)

func main() {
	app := &cli.Command{
		Name:   "rwkv",
		Usage:  "Load, run, pack and serve RWKV models",
		Flags:  loggingFlags(),
		Before: setupLogging,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			runCmd(),
			infoCmd(),
			packCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging installs the logger chosen by the logging flags, falling
// back to the config file, as both the process default and the context
// logger.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg := LoadConfig()
	if cfg.Log.Level != "" && !cmd.IsSet("log-level") {
		logLevel = cfg.Log.Level
	}
	if cfg.Log.Format != "" && !cmd.IsSet("log-format") {
		logFormat = cfg.Log.Format
	}
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	log, err := logger.Open(logFormat, os.Stderr, level)
	if err != nil {
		return ctx, err
	}
	logger.SetDefault(log)
	return logger.WithContext(ctx, log), nil
}
