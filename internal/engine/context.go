// Package engine is the compute engine the runtime drives: a context with
// resource limits, per-version RWKV models and their inference bundles,
// recurrent state, and the hook mechanism that splices extra operators into
// a layer's forward pass. This implementation runs on the CPU.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/samcharles93/rwkvffi/internal/model"
)

var ErrLimits = errors.New("engine: adapter cannot satisfy limits")

const (
	// DefaultAdapterMemory is the largest single buffer the CPU adapter
	// agrees to allocate.
	DefaultAdapterMemory = 1 << 34

	defaultMaxBufferSize = 1 << 28
)

type Limits struct {
	MaxBufferSize int
}

// Context owns the adapter handle and limits a model is built against.
type Context struct {
	adapter string
	limits  Limits
}

func (c *Context) Adapter() string { return c.adapter }
func (c *Context) Limits() Limits { return c.limits }

type ContextBuilder struct {
	limits        Limits
	adapterMemory int
}

func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{
		limits:        Limits{MaxBufferSize: defaultMaxBufferSize},
		adapterMemory: DefaultAdapterMemory,
	}
}

// AutoLimits raises the buffer limit to fit the largest tensor of info.
func (b *ContextBuilder) AutoLimits(info model.Info) *ContextBuilder {
	largest := max(
		info.NumVocab*info.NumEmb,
		info.NumHidden*info.NumEmb,
		info.StateLen(),
	) * 4
	b.limits.MaxBufferSize = max(b.limits.MaxBufferSize, largest)
	return b
}

// AdapterMemory overrides the adapter's allocation ceiling.
func (b *ContextBuilder) AdapterMemory(n int) *ContextBuilder {
	b.adapterMemory = n
	return b
}

// Build acquires the adapter. It honours ctx cancellation.
func (b *ContextBuilder) Build(ctx context.Context) (*Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.limits.MaxBufferSize > b.adapterMemory {
		return nil, fmt.Errorf("%w: max buffer %d > adapter memory %d", ErrLimits, b.limits.MaxBufferSize, b.adapterMemory)
	}
	return &Context{adapter: "cpu", limits: b.limits}, nil
}

// TensorFromData wraps data as a tensor after checking its element count.
func (c *Context) TensorFromData(shape Shape, data []float32) (Tensor, error) {
	if err := checkLen(shape, len(data)); err != nil {
		return Tensor{}, err
	}
	return Tensor{Shape: shape, Data: data}, nil
}

// Softmax returns a new probability vector for x.
func (c *Context) Softmax(ctx context.Context, x []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float32, len(x))
	if len(x) == 0 {
		return out, nil
	}
	peak := float32(math.Inf(-1))
	for _, v := range x {
		peak = max(peak, v)
	}
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
