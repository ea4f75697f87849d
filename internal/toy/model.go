// Package toy generates small deterministic RWKV checkpoints for tests and
// benchmarks.
package toy

import (
	"fmt"
	"math/rand/v2"

	"github.com/samcharles93/rwkvffi/internal/model"
	"github.com/samcharles93/rwkvffi/internal/safetensors"
)

// lowRank is the inner width of the V6 decay projection.
const lowRank = 4

// Checkpoint holds every tensor of a toy model under its checkpoint name.
type Checkpoint map[string]safetensors.Tensor

// Info returns a model description small enough for unit tests.
func Info(v model.Version) model.Info {
	info := model.Info{
		Version:   v,
		NumLayer:  2,
		NumEmb:    8,
		NumHidden: 16,
		NumVocab:  12,
		NumHead:   2,
	}
	if v == model.V4 {
		info.NumHead = 1
	}
	return info
}

// New builds a checkpoint for info with weights drawn from seed.
func New(info model.Info, seed uint64) Checkpoint {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	c := make(Checkpoint)
	emb, hidden := info.NumEmb, info.NumHidden
	heads, hs := info.NumHead, info.HeadSize()

	c.rand(rng, model.TensorEmb, 1, info.NumVocab, emb)
	c.rand(rng, model.TensorHead, 0.5, info.NumVocab, emb)
	c.fill(model.TensorLn0W, 1, emb)
	c.fill(model.TensorLn0B, 0, emb)
	c.fill(model.TensorLnOutW, 1, emb)
	c.fill(model.TensorLnOutB, 0, emb)

	for l := range info.NumLayer {
		name := func(suffix string) string { return model.Block(l, suffix) }
		c.fill(name(model.LnAttW), 1, emb)
		c.fill(name(model.LnAttB), 0, emb)
		c.fill(name(model.LnFfnW), 1, emb)
		c.fill(name(model.LnFfnB), 0, emb)
		for _, s := range []string{model.AttReceptance, model.AttKey, model.AttValue, model.AttOutput} {
			c.rand(rng, name(s), 0.3, emb, emb)
		}
		c.rand(rng, name(model.FfnKey), 0.3, hidden, emb)
		c.rand(rng, name(model.FfnValue), 0.3, emb, hidden)
		if info.Version != model.V7 {
			c.rand(rng, name(model.FfnReceptance), 0.3, emb, emb)
		}

		switch info.Version {
		case model.V4:
			c.rand(rng, name(model.AttTimeDecay), 1, emb)
			c.rand(rng, name(model.AttTimeFirst), 1, emb)
		case model.V5, model.V6:
			c.rand(rng, name(model.AttTimeDecay), 1, heads, hs)
			c.rand(rng, name(model.AttTimeFaaaa), 1, heads, hs)
			c.fill(name(model.AttLnXW), 1, emb)
			c.fill(name(model.AttLnXB), 0, emb)
			if info.Version == model.V6 {
				c.rand(rng, name(model.AttDecayW1), 0.3, emb, lowRank)
				c.rand(rng, name(model.AttDecayW2), 0.3, lowRank, emb)
			}
		case model.V7:
			c.rand(rng, name(model.AttW0), 1, emb)
			c.rand(rng, name(model.AttA0), 1, emb)
			c.rand(rng, name(model.AttRK), 0.5, heads, hs)
			c.fill(name(model.AttLnXW), 1, emb)
			c.fill(name(model.AttLnXB), 0, emb)
		}
	}
	return c
}

func (c Checkpoint) rand(rng *rand.Rand, name string, scale float32, shape ...int) {
	t := safetensors.Tensor{Shape: shape, Data: make([]float32, numel(shape))}
	for i := range t.Data {
		t.Data[i] = (rng.Float32()*2 - 1) * scale
	}
	c[name] = t
}

func (c Checkpoint) fill(name string, v float32, shape ...int) {
	t := safetensors.Tensor{Shape: shape, Data: make([]float32, numel(shape))}
	for i := range t.Data {
		t.Data[i] = v
	}
	c[name] = t
}

// TensorNames and TensorShape let a checkpoint stand in for an archive
// during detection.
func (c Checkpoint) TensorNames() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	return names
}

func (c Checkpoint) TensorShape(name string) ([]int, bool) {
	t, ok := c[name]
	return t.Shape, ok
}

// Tensor returns a private copy so builders may quantize in place.
func (c Checkpoint) Tensor(name string) ([]float32, []int, error) {
	t, ok := c[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", safetensors.ErrTensorNotFound, name)
	}
	return append([]float32(nil), t.Data...), t.Shape, nil
}

// Write stores the checkpoint as a safetensors file.
func (c Checkpoint) Write(path string) error {
	return safetensors.WriteFile(path, c, map[string]string{"format": "pt"})
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
