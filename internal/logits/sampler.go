// Package logits turns a logit vector into a sampled token id.
package logits

import (
	"cmp"
	"context"
	"math"
	"math/rand"
	"slices"
	"sync"
)

// Config holds the sampler parameters. TopK <= 1 selects the argmax and
// skips softmax entirely. Temperature must be positive on the stochastic
// path.
type Config struct {
	Temperature float32
	TopP        float32
	TopK        int
}

func DefaultConfig() Config {
	return Config{Temperature: 1.0, TopP: 0.5, TopK: 128}
}

// Greedy reports whether c takes the deterministic path.
func (c Config) Greedy() bool { return c.TopK <= 1 }

// Softmaxer is the numeric primitive used on the stochastic path.
type Softmaxer interface {
	Softmax(ctx context.Context, x []float32) ([]float32, error)
}

// Source yields uniform draws in [0, 1).
type Source interface {
	Float32() float32
}

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(0))
)

// Seed resets the process-wide draw source.
func Seed(seed uint64) {
	rngMu.Lock()
	rng = rand.New(rand.NewSource(int64(seed)))
	rngMu.Unlock()
}

type globalSource struct{}

func (globalSource) Float32() float32 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.Float32()
}

// Global draws from the seeded process-wide source.
func Global() Source { return globalSource{} }

// Sample picks a token id from logits. The deterministic path never calls
// sm and never draws from src.
func Sample(ctx context.Context, logits []float32, cfg Config, sm Softmaxer, src Source) (int, error) {
	if cfg.Greedy() {
		return Argmax(logits), nil
	}
	probs, err := sm.Softmax(ctx, logits)
	if err != nil {
		return 0, err
	}
	return Nucleus(probs, cfg, src.Float32()), nil
}

// Argmax returns the index of the largest value under total order, the
// first one on ties. It returns 0 for an empty slice.
func Argmax(x []float32) int {
	best := 0
	for i := 1; i < len(x); i++ {
		if totalCmp(x[i], x[best]) > 0 {
			best = i
		}
	}
	return best
}

// Nucleus samples from a probability vector given a draw r in [0, 1).
//
// Candidates are sorted by descending probability and capped at TopK. A
// candidate is kept while the mass before it is at most TopP, so the
// candidate that crosses the threshold is kept and the first is always
// kept. Kept weights are p^(1/Temperature), renormalised, and the first
// candidate whose running weight reaches r wins.
func Nucleus(probs []float32, cfg Config, r float32) int {
	if len(probs) == 0 {
		return 0
	}
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return totalCmp(probs[b], probs[a])
	})
	idx = idx[:min(max(cfg.TopK, 1), len(idx))]

	keep := 0
	var mass float32
	for _, i := range idx {
		if keep > 0 && mass > cfg.TopP {
			break
		}
		mass += probs[i]
		keep++
	}
	idx = idx[:keep]

	inv := 1 / float64(cfg.Temperature)
	weights := make([]float64, len(idx))
	var sum float64
	for k, i := range idx {
		weights[k] = math.Pow(float64(probs[i]), inv)
		sum += weights[k]
	}

	var acc float64
	for k, i := range idx {
		acc += weights[k] / sum
		if acc >= float64(r) {
			return i
		}
	}
	return idx[0]
}

// totalCmp orders floats like IEEE 754 totalOrder: -NaN < -Inf < ... < -0 <
// +0 < ... < +Inf < +NaN.
func totalCmp(a, b float32) int {
	return cmp.Compare(totalKey(a), totalKey(b))
}

func totalKey(f float32) int32 {
	i := int32(math.Float32bits(f))
	return i ^ int32(uint32(i>>31)>>1)
}
