package logits

import (
	"context"
	"errors"
	"math"
	"testing"
)

type fixedSource float32

func (f fixedSource) Float32() float32 { return float32(f) }

type countingSoftmax struct {
	calls int
	err   error
}

func (c *countingSoftmax) Softmax(_ context.Context, x []float32) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	peak := x[Argmax(x)]
	out := make([]float32, len(x))
	var sum float64
	for i, v := range x {
		e := math.Exp(float64(v - peak))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out, nil
}

func TestArgmax(t *testing.T) {
	t.Parallel()
	nan := float32(math.NaN())
	tests := []struct {
		name string
		x    []float32
		want int
	}{
		{name: "max", x: []float32{-1, 5, 3, 7, 2}, want: 3},
		{name: "first tie", x: []float32{1, 4, 4, 0}, want: 1},
		{name: "negative", x: []float32{-3, -1, -2}, want: 1},
		{name: "empty", x: nil, want: 0},
		{name: "inf", x: []float32{1, float32(math.Inf(1)), 2}, want: 1},
		{name: "nan sorts high", x: []float32{1, nan, 2}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Argmax(tt.x); got != tt.want {
				t.Fatalf("Argmax(%v) = %d, want %d", tt.x, got, tt.want)
			}
		})
	}
}

func TestSampleGreedySkipsSoftmax(t *testing.T) {
	t.Parallel()
	for _, k := range []int{-1, 0, 1} {
		sm := &countingSoftmax{}
		got, err := Sample(context.Background(), []float32{0.1, 3, 2}, Config{Temperature: 1, TopP: 0.5, TopK: k}, sm, fixedSource(0.99))
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		if got != 1 {
			t.Fatalf("top_k=%d: got %d, want 1", k, got)
		}
		if sm.calls != 0 {
			t.Fatalf("top_k=%d: softmax called %d times", k, sm.calls)
		}
	}
}

func TestSampleSoftmaxError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	_, err := Sample(context.Background(), []float32{1, 2}, DefaultConfig(), &countingSoftmax{err: boom}, fixedSource(0))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestNucleusCutoff(t *testing.T) {
	t.Parallel()
	probs := []float32{0.9, 0.05, 0.05}
	// A draw at the far end must still land on the single kept candidate.
	if got := Nucleus(probs, Config{Temperature: 1, TopP: 0.5, TopK: 3}, 0.999); got != 0 {
		t.Fatalf("top_p 0.5 kept more than one candidate, got %d", got)
	}

	seen := map[int]bool{}
	for _, r := range []float32{0, 0.5, 0.92, 0.97, 0.9999} {
		seen[Nucleus(probs, Config{Temperature: 1, TopP: 1, TopK: 3}, r)] = true
	}
	if len(seen) != 3 {
		t.Fatalf("top_p 1.0 reached %v, want all three", seen)
	}
}

func TestNucleusKeepsCrossingCandidate(t *testing.T) {
	t.Parallel()
	probs := []float32{0.4, 0.35, 0.25}
	// Mass before the second candidate is 0.4 <= 0.5, so it is kept; the
	// third starts at 0.75 and is dropped.
	cfg := Config{Temperature: 1, TopP: 0.5, TopK: 3}
	if got := Nucleus(probs, cfg, 0.999); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestNucleusTopK(t *testing.T) {
	t.Parallel()
	probs := []float32{0.1, 0.2, 0.3, 0.4}
	cfg := Config{Temperature: 1, TopP: 1, TopK: 2}
	for _, r := range []float32{0, 0.3, 0.6, 0.9999} {
		if got := Nucleus(probs, cfg, r); got != 3 && got != 2 {
			t.Fatalf("r=%v: got %d outside top 2", r, got)
		}
	}
	if got := Nucleus(probs, Config{Temperature: 1, TopP: 1, TopK: 100}, 0.9999); got < 0 || got >= len(probs) {
		t.Fatalf("oversized top_k returned %d", got)
	}
}

func TestNucleusTemperature(t *testing.T) {
	t.Parallel()
	probs := []float32{0.6, 0.4}
	// At low temperature the weights collapse onto the leader.
	cfg := Config{Temperature: 0.05, TopP: 1, TopK: 2}
	if got := Nucleus(probs, cfg, 0.99); got != 0 {
		t.Fatalf("cold sample got %d, want 0", got)
	}
	// At high temperature the split approaches uniform.
	cfg.Temperature = 100
	if got := Nucleus(probs, cfg, 0.6); got != 1 {
		t.Fatalf("hot sample got %d, want 1", got)
	}
}

func TestNucleusExtremes(t *testing.T) {
	t.Parallel()
	nan := float32(math.NaN())
	inputs := [][]float32{
		{0.25, 0.25, 0.25, 0.25},
		{1, 0, 0},
		{0, 0, 0},
		{nan, 0.5, 0.5},
		{},
	}
	for _, probs := range inputs {
		for _, r := range []float32{0, math.Nextafter32(1, 0)} {
			got := Nucleus(probs, Config{Temperature: 0.7, TopP: 0.9, TopK: 8}, r)
			if got < 0 || (len(probs) > 0 && got >= len(probs)) {
				t.Fatalf("Nucleus(%v, r=%v) = %d", probs, r, got)
			}
		}
	}
}

func TestSeedReproducible(t *testing.T) {
	Seed(42)
	a := []float32{Global().Float32(), Global().Float32()}
	Seed(42)
	b := []float32{Global().Float32(), Global().Float32()}
	if a[0] != b[0] || a[1] != b[1] {
		t.Fatalf("seeded draws differ: %v vs %v", a, b)
	}
	for _, v := range a {
		if v < 0 || v >= 1 {
			t.Fatalf("draw %v out of [0, 1)", v)
		}
	}
}

func TestSampleStochasticInRange(t *testing.T) {
	t.Parallel()
	logits := []float32{1, 2, 3, 4, 5}
	for _, r := range []float32{0, 0.25, 0.5, 0.75, 0.9999} {
		got, err := Sample(context.Background(), logits, Config{Temperature: 1, TopP: 1, TopK: 5}, &countingSoftmax{}, fixedSource(r))
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		if got < 0 || got >= len(logits) {
			t.Fatalf("r=%v: got %d", r, got)
		}
	}
}
