package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rwkvffi/internal/engine"
	"github.com/samcharles93/rwkvffi/internal/logger"
	"github.com/samcharles93/rwkvffi/internal/logits"
	"github.com/samcharles93/rwkvffi/internal/runtime"
)

type stateDump struct {
	Version int       `json:"version"`
	Tokens  []uint32  `json:"tokens"`
	State   []float32 `json:"state"`
}

func runCmd() *cli.Command {
	var (
		prompt   string
		steps    int64
		temp     float64
		topK     int64
		topP     float64
		seed     uint64
		stateOut string
		stateIn  string
		raw      bool
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Feed token ids through a model and sample a continuation",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt token ids, comma or space separated",
				Destination: &prompt,
			},
			&cli.Int64Flag{
				Name:        "steps",
				Aliases:     []string{"n"},
				Usage:       "number of tokens to generate",
				Value:       16,
				Destination: &steps,
			},
			&cli.Float64Flag{
				Name:        "temp",
				Aliases:     []string{"temperature", "t"},
				Usage:       "sampling temperature",
				Value:       float64(logits.DefaultConfig().Temperature),
				Destination: &temp,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Usage:       "top-k candidates (1 or less is greedy)",
				Value:       int64(logits.DefaultConfig().TopK),
				Destination: &topK,
			},
			&cli.Float64Flag{
				Name:        "top-p",
				Usage:       "nucleus threshold",
				Value:       float64(logits.DefaultConfig().TopP),
				Destination: &topP,
			},
			&cli.Uint64Flag{
				Name:        "seed",
				Usage:       "sampler seed",
				Destination: &seed,
			},
			&cli.StringFlag{
				Name:        "state-in",
				Usage:       "restore state from a JSON dump before running",
				Destination: &stateIn,
			},
			&cli.StringFlag{
				Name:        "state-out",
				Usage:       "write the final state as JSON to this path",
				Destination: &stateOut,
			},
			&cli.BoolFlag{
				Name:        "raw",
				Usage:       "print the prompt's last logits instead of sampling",
				Destination: &raw,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := LoadConfig()
			applyModelConfig(c, cfg)
			applySamplerConfig(c, cfg, &temp, &topP, &topK, &seed)
			log := logger.FromContext(ctx)

			tokens, err := parseTokens(prompt)
			if err != nil {
				return err
			}
			if len(tokens) == 0 {
				return fmt.Errorf("--prompt needs at least one token id")
			}

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if stateIn != "" {
				if err := restoreState(ctx, rt, stateIn); err != nil {
					return err
				}
			}

			if raw {
				out, err := rt.Infer(ctx, tokens, engine.InferLast)
				if err != nil {
					return err
				}
				for i, v := range out {
					fmt.Printf("%d\t%g\n", i, v)
				}
				return dumpState(ctx, rt, stateOut, tokens)
			}

			logits.Seed(seed)
			sampler := logits.Config{
				Temperature: float32(temp),
				TopP:        float32(topP),
				TopK:        int(topK),
			}
			start := time.Now()
			generated := make([]uint32, 0, max(steps, 0))
			input := tokens
			for range steps {
				tok, err := rt.Sample(ctx, input, sampler, logits.Global())
				if err != nil {
					return err
				}
				generated = append(generated, uint32(tok))
				input = []uint32{uint32(tok)}
			}
			elapsed := time.Since(start)
			log.Info("generation done",
				"prompt_tokens", len(tokens),
				"generated", len(generated),
				"elapsed", elapsed,
			)
			fmt.Println(formatTokens(generated))
			return dumpState(ctx, rt, stateOut, append(tokens, generated...))
		},
	}
}

func dumpState(ctx context.Context, rt *runtime.Runtime, path string, tokens []uint32) error {
	if path == "" {
		return nil
	}
	state, err := rt.State(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(stateDump{
		Version: int(rt.Info().Version),
		Tokens:  tokens,
		State:   state,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func restoreState(ctx context.Context, rt *runtime.Runtime, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var dump stateDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return fmt.Errorf("decode state %s: %w", path, err)
	}
	if v := int(rt.Info().Version); dump.Version != v {
		return fmt.Errorf("state %s was saved from a v%d model, loaded model is v%d", path, dump.Version, v)
	}
	return rt.SetState(ctx, dump.State)
}
