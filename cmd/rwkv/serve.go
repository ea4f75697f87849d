package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	"github.com/samcharles93/rwkvffi/internal/api"
	"github.com/samcharles93/rwkvffi/internal/logger"
	"github.com/samcharles93/rwkvffi/internal/logits"
	"github.com/samcharles93/rwkvffi/internal/runtime"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		modelsDir   string
		readTimeout time.Duration
		inferRate   float64
		inferBurst  int64
		seed        uint64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the session over HTTP",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.StringFlag{
				Name:        "models-dir",
				Usage:       "root directory for /v1/load paths",
				Destination: &modelsDir,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Float64Flag{
				Name:        "infer-rate",
				Usage:       "inference requests per second (0 disables limiting)",
				Destination: &inferRate,
			},
			&cli.Int64Flag{
				Name:        "infer-burst",
				Usage:       "inference request burst",
				Value:       4,
				Destination: &inferBurst,
			},
			&cli.Uint64Flag{
				Name:        "seed",
				Usage:       "sampler seed",
				Destination: &seed,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := LoadConfig()
			applyModelConfig(c, cfg)
			if cfg.Serve.Address != "" && !c.IsSet("addr") {
				addr = cfg.Serve.Address
			}
			sampler := logits.DefaultConfig()
			temp, topP, topK := float64(sampler.Temperature), float64(sampler.TopP), int64(sampler.TopK)
			applySamplerConfig(c, cfg, &temp, &topP, &topK, &seed)
			sampler = logits.Config{Temperature: float32(temp), TopP: float32(topP), TopK: int(topK)}
			logits.Seed(seed)

			log := logger.FromContext(ctx)
			reg := &runtime.Registry{}
			defer reg.Reset()
			if modelPath != "" || prefabPath != "" {
				rt, err := openRuntime(ctx)
				if err != nil {
					return err
				}
				reg.Install(rt)
			}

			server := api.NewServer(reg, api.Config{
				ModelsDir:  modelsDir,
				Sampler:    sampler,
				InferRate:  rate.Limit(inferRate),
				InferBurst: int(inferBurst),
			}, log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
