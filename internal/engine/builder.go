package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/rwkvffi/internal/model"
)

var ErrVersion = errors.New("engine: builder version mismatch")

// WeightSource yields f32 tensors by checkpoint name. Implementations must
// be safe for concurrent reads.
type WeightSource interface {
	Tensor(name string) ([]float32, []int, error)
}

// Builder turns a weight source into a model of one version. Quantization
// and rescale are applied while weights are loaded, unless the source is
// marked baked.
type Builder struct {
	ctx     *Context
	info    model.Info
	src     WeightSource
	quant   model.QuantPlan
	rescale int
	baked   bool
}

func NewBuilder(c *Context, info model.Info, src WeightSource) *Builder {
	return &Builder{ctx: c, info: info, src: src}
}

func (b *Builder) Quant(plan model.QuantPlan) *Builder {
	b.quant = plan
	return b
}

// Rescale halves activations every n layers; n <= 0 disables it.
func (b *Builder) Rescale(n int) *Builder {
	b.rescale = max(n, 0)
	return b
}

// Baked marks the weights as already quantized and rescaled with interval
// rescale, as found in a prefab.
func (b *Builder) Baked(plan model.QuantPlan, rescale int) *Builder {
	b.baked = true
	b.quant = plan
	b.rescale = max(rescale, 0)
	return b
}

func (b *Builder) BuildV4(ctx context.Context) (*ModelV4, error) {
	w, err := b.build(ctx, model.V4)
	if err != nil {
		return nil, err
	}
	return &ModelV4{w: w}, nil
}

func (b *Builder) BuildV5(ctx context.Context) (*ModelV5, error) {
	w, err := b.build(ctx, model.V5)
	if err != nil {
		return nil, err
	}
	return &ModelV5{w: w}, nil
}

func (b *Builder) BuildV6(ctx context.Context) (*ModelV6, error) {
	w, err := b.build(ctx, model.V6)
	if err != nil {
		return nil, err
	}
	return &ModelV6{w: w}, nil
}

func (b *Builder) BuildV7(ctx context.Context) (*ModelV7, error) {
	w, err := b.build(ctx, model.V7)
	if err != nil {
		return nil, err
	}
	return &ModelV7{w: w}, nil
}

func (b *Builder) build(ctx context.Context, v model.Version) (*weights, error) {
	if b.info.Version != v {
		return nil, fmt.Errorf("%w: info is %s, building %s", ErrVersion, b.info.Version, v)
	}
	if err := b.info.Validate(); err != nil {
		return nil, err
	}
	info := b.info
	w := &weights{
		info:    info,
		layers:  make([]layerWeights, info.NumLayer),
		quant:   b.quant.Clip(info.NumLayer),
		rescale: b.rescale,
	}

	var err error
	if w.emb, err = b.matrix(model.TensorEmb, info.NumVocab, info.NumEmb); err != nil {
		return nil, err
	}
	if w.head, err = b.matrix(model.TensorHead, info.NumVocab, info.NumEmb); err != nil {
		return nil, err
	}
	for _, f := range w.globalVectors() {
		if *f.ptr, err = b.vector(f.name, info.NumEmb); err != nil {
			return nil, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for l := range w.layers {
		g.Go(func() error { return b.loadLayer(gctx, w, l) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return w, nil
}

func (b *Builder) loadLayer(ctx context.Context, w *weights, l int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lw := &w.layers[l]
	vecs, mats := lw.fields(w.info)
	for _, f := range vecs {
		data, err := b.vector(model.Block(l, f.suffix), w.info.NumEmb)
		if err != nil {
			return err
		}
		*f.ptr = data
	}
	for _, f := range mats {
		m, err := b.matrix(model.Block(l, f.suffix), f.rows, f.cols)
		if err != nil {
			return err
		}
		if !b.baked {
			quantize(m, w.quant.For(l))
			if b.rescale > 0 && f.rescaled {
				scale := float32(math.Ldexp(1, -(l / b.rescale)))
				for i := range m.Data {
					m.Data[i] *= scale
				}
			}
		}
		*f.ptr = m
	}
	return nil
}

func (b *Builder) vector(name string, n int) ([]float32, error) {
	data, shape, err := b.src.Tensor(name)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: %s %v wants %d elements", ErrShape, name, shape, n)
	}
	return data, nil
}

// matrix loads a 2D weight. A zero rows or cols accepts any extent.
func (b *Builder) matrix(name string, rows, cols int) (Matrix, error) {
	data, shape, err := b.src.Tensor(name)
	if err != nil {
		return Matrix{}, err
	}
	if len(shape) != 2 || (rows > 0 && shape[0] != rows) || (cols > 0 && shape[1] != cols) {
		return Matrix{}, fmt.Errorf("%w: %s is %v, want [%d, %d]", ErrShape, name, shape, rows, cols)
	}
	if len(data) != shape[0]*shape[1] {
		return Matrix{}, fmt.Errorf("%w: %s has %d elements for %v", ErrShape, name, len(data), shape)
	}
	if size := len(data) * 4; size > b.ctx.Limits().MaxBufferSize {
		return Matrix{}, fmt.Errorf("%w: %s needs %d bytes", ErrLimits, name, size)
	}
	return Matrix{Rows: shape[0], Cols: shape[1], Data: data}, nil
}
