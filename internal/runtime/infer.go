package runtime

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/samcharles93/rwkvffi/internal/engine"
	"github.com/samcharles93/rwkvffi/internal/logits"
	"github.com/samcharles93/rwkvffi/internal/metrics"
)

var (
	ErrEmptyInput = errors.New("runtime: input cannot be empty")
	ErrNoProgress = errors.New("runtime: inference step consumed no tokens")
)

type step struct {
	rest engine.InferInput
	out  engine.InferOutput
}

// Infer runs tokens through the session. InferLast returns the logits of
// the final token; InferFull returns every position's logits concatenated
// in order.
func (r *Runtime) Infer(ctx context.Context, tokens []uint32, mode engine.InferOption) ([]float32, error) {
	out, err := r.infer(ctx, tokens, mode)
	if err != nil {
		metrics.InferErrors.Inc()
	}
	return out, err
}

func (r *Runtime) infer(ctx context.Context, tokens []uint32, mode engine.InferOption) ([]float32, error) {
	if len(tokens) == 0 {
		return nil, ErrEmptyInput
	}
	in := engine.NewInferInput([]engine.InferInputBatch{{
		Tokens: slices.Clone(tokens),
		Option: mode,
	}}, r.chunk)

	var out []float32
	for {
		pending := in.NumToken()
		s, err := Submit(ctx, r.exec, func(ctx context.Context) (step, error) {
			rest, out, err := r.bundle.Infer(ctx, in)
			return step{rest: rest, out: out}, err
		})
		if err != nil {
			return nil, fmt.Errorf("infer step: %w", err)
		}
		consumed := pending - s.rest.NumToken()
		if consumed <= 0 {
			return nil, fmt.Errorf("%w: %d tokens pending", ErrNoProgress, pending)
		}
		metrics.ObserveStep(mode.String(), consumed)

		if len(s.out.Batches) != 1 {
			return nil, fmt.Errorf("%w: step returned %d batches", engine.ErrBatch, len(s.out.Batches))
		}
		logits := s.out.Batches[0]
		switch {
		case mode == engine.InferFull:
			out = append(out, logits.Data...)
		case logits.Shape[1] > 0:
			out = append(out[:0], logits.Row(logits.Shape[1]-1)...)
		}

		if s.rest.NumToken() == 0 {
			return out, nil
		}
		in = s.rest
	}
}

// softmaxer runs the softmax primitive on the session executor.
type softmaxer struct{ r *Runtime }

func (s softmaxer) Softmax(ctx context.Context, x []float32) ([]float32, error) {
	return Submit(ctx, s.r.exec, func(ctx context.Context) ([]float32, error) {
		return s.r.engine.Softmax(ctx, x)
	})
}

// Sample runs tokens in InferLast mode and draws the next token from src.
func (r *Runtime) Sample(ctx context.Context, tokens []uint32, cfg logits.Config, src logits.Source) (int, error) {
	out, err := r.Infer(ctx, tokens, engine.InferLast)
	if err != nil {
		return 0, err
	}
	path := "nucleus"
	if cfg.Greedy() {
		path = "greedy"
	}
	metrics.SamplesTotal.WithLabelValues(path).Inc()
	return logits.Sample(ctx, out, cfg, softmaxer{r: r}, src)
}
