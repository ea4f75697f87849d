package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/samcharles93/rwkvffi/internal/model"
)

// Bundle pairs a model with its state and bound hooks. One Infer call runs
// at a time.
type Bundle struct {
	mu sync.Mutex

	w       *weights
	state   *state
	buffers []*Buffer
	hooks   []layerHooks
	mix     timeMixFunc

	x      []float32
	hidden []float32
	logit  []float32
	scr    scratch
}

// scratch is reused by the time mix kernels.
type scratch struct {
	y     []float32
	kk    []float32
	decay []float32
	low   []float32
}

type timeMixFunc func(b *Bundle, lw *layerWeights, buf *Buffer, st []float32, hooks layerHooks) error

func NewBundleV4(m *ModelV4, numBatch int, hooks HookMap) (*Bundle, error) {
	return newBundle(m.w, numBatch, hooks, timeMixV4)
}

func NewBundleV5(m *ModelV5, numBatch int, hooks HookMap) (*Bundle, error) {
	return newBundle(m.w, numBatch, hooks, timeMixV5)
}

func NewBundleV6(m *ModelV6, numBatch int, hooks HookMap) (*Bundle, error) {
	return newBundle(m.w, numBatch, hooks, timeMixV6)
}

func NewBundleV7(m *ModelV7, numBatch int, hooks HookMap) (*Bundle, error) {
	return newBundle(m.w, numBatch, hooks, timeMixV7)
}

// NewBundle dispatches on the concrete model type.
func NewBundle(m Model, numBatch int, hooks HookMap) (*Bundle, error) {
	switch m := m.(type) {
	case *ModelV4:
		return NewBundleV4(m, numBatch, hooks)
	case *ModelV5:
		return NewBundleV5(m, numBatch, hooks)
	case *ModelV6:
		return NewBundleV6(m, numBatch, hooks)
	case *ModelV7:
		return NewBundleV7(m, numBatch, hooks)
	}
	return nil, fmt.Errorf("%w: %T", model.ErrUnknownVersion, m)
}

func newBundle(w *weights, numBatch int, hooks HookMap, mix timeMixFunc) (*Bundle, error) {
	if numBatch < 1 {
		return nil, fmt.Errorf("%w: %d", ErrBatch, numBatch)
	}
	info := w.info
	buffers := make([]*Buffer, info.NumLayer)
	for l := range buffers {
		buffers[l] = newBuffer(info.Version, info.NumEmb)
	}
	bound, err := bindHooks(info.Version, hooks, buffers)
	if err != nil {
		return nil, err
	}
	emb := info.NumEmb
	return &Bundle{
		w:       w,
		state:   newState(info, numBatch),
		buffers: buffers,
		hooks:   bound,
		mix:     mix,
		x:       make([]float32, emb),
		hidden:  make([]float32, info.NumHidden),
		logit:   make([]float32, info.NumVocab),
		scr: scratch{
			y:     make([]float32, emb),
			kk:    make([]float32, emb),
			decay: make([]float32, emb),
			low:   make([]float32, max(w.lowRank(), 1)),
		},
	}, nil
}

func (w *weights) lowRank() int {
	if len(w.layers) == 0 {
		return 0
	}
	return w.layers[0].decayW1.Cols
}

func (b *Bundle) Info() model.Info { return b.w.info }
func (b *Bundle) State() State     { return b.state }

// Infer consumes up to one chunk of tokens from every batch and returns the
// rest. A slot whose option is InferLast yields at most one row of logits.
func (b *Bundle) Infer(ctx context.Context, in InferInput) (InferInput, InferOutput, error) {
	if len(in.Batches) != b.state.numBatch {
		return in, InferOutput{}, fmt.Errorf("%w: got %d, bundle has %d", ErrBatch, len(in.Batches), b.state.numBatch)
	}
	vocab := b.w.info.NumVocab
	for _, batch := range in.Batches {
		for _, tok := range batch.Tokens {
			if int(tok) >= vocab {
				return in, InferOutput{}, fmt.Errorf("%w: %d >= %d", ErrToken, tok, vocab)
			}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.mu.Lock()
	defer b.state.mu.Unlock()

	chunk := in.chunkSize()
	rest := InferInput{Batches: make([]InferInputBatch, len(in.Batches)), TokenChunkSize: in.TokenChunkSize}
	out := InferOutput{Batches: make([]Tensor, len(in.Batches))}
	for i, batch := range in.Batches {
		if err := ctx.Err(); err != nil {
			return in, InferOutput{}, err
		}
		n := min(chunk, len(batch.Tokens))
		take := batch.Tokens[:n]
		rest.Batches[i] = InferInputBatch{Tokens: batch.Tokens[n:], Option: batch.Option}

		rows := 0
		switch {
		case n == 0:
		case batch.Option == InferFull:
			rows = n
		default:
			rows = 1
		}
		logits := NewTensor(Shape{vocab, rows, 1, 1})
		for t, tok := range take {
			wanted := batch.Option == InferFull || t == n-1
			if err := b.forward(i, tok, wanted); err != nil {
				return in, InferOutput{}, err
			}
			if !wanted {
				continue
			}
			r := 0
			if batch.Option == InferFull {
				r = t
			}
			copy(logits.Row(r), b.logit)
		}
		out.Batches[i] = logits
	}
	return rest, out, nil
}

// forward advances slot batch by one token. Callers hold both locks.
func (b *Bundle) forward(batch int, tok uint32, wantLogits bool) error {
	w := b.w
	info := w.info
	emb := info.NumEmb
	x := b.x
	copy(x, w.emb.Data[int(tok)*emb:(int(tok)+1)*emb])
	layerNorm(x, x, w.ln0W, w.ln0B)

	for l := range w.layers {
		lw := &w.layers[l]
		buf := b.buffers[l]
		hooks := b.hooks[l]
		st := b.state.layer(batch, l)

		layerNorm(buf.AttX, x, lw.ln1W, lw.ln1B)
		if err := hooks.run(PreAtt); err != nil {
			return err
		}
		if err := b.mix(b, lw, buf, st, hooks); err != nil {
			return err
		}
		if err := hooks.run(PostAtt); err != nil {
			return err
		}
		for i, v := range buf.AttO {
			x[i] += v
		}

		layerNorm(buf.FfnX, x, lw.ln2W, lw.ln2B)
		if err := hooks.run(PreFfn); err != nil {
			return err
		}
		b.channelMix(lw, buf, st)
		if err := hooks.run(PostFfn); err != nil {
			return err
		}
		for i, v := range buf.FfnO {
			x[i] += v
		}

		if w.rescale > 0 && (l+1)%w.rescale == 0 {
			for i := range x {
				x[i] /= 2
			}
		}
	}

	if !wantLogits {
		return nil
	}
	layerNorm(x, x, w.lnOutW, w.lnOutB)
	w.head.MulVec(b.logit, x)
	return nil
}

// channelMix writes the feed-forward output of one layer into buf.FfnO. The
// shifted input is stored in the last state row of the layer.
func (b *Bundle) channelMix(lw *layerWeights, buf *Buffer, st []float32) {
	info := b.w.info
	emb := info.NumEmb
	prev := row(st, info.StateRowsPerLayer()-1, emb)
	xs := b.scr.y
	tokenShift(xs, buf.FfnX, prev)

	lw.ffnK.MulVec(b.hidden, xs)
	for i, v := range b.hidden {
		v = max(v, 0)
		b.hidden[i] = v * v
	}
	lw.ffnV.MulVec(buf.FfnO, b.hidden)
	if info.Version == model.V7 {
		return
	}
	lw.ffnR.MulVec(b.scr.kk, xs)
	for i, r := range b.scr.kk {
		buf.FfnO[i] *= sigmoid(r)
	}
}
