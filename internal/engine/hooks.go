package engine

import (
	"errors"
	"fmt"

	"github.com/samcharles93/rwkvffi/internal/model"
)

var ErrHookPoint = errors.New("engine: hook point not available")

// HookPoint names a place in a layer's forward pass where extra operators
// may run.
type HookPoint uint8

const (
	PreAtt HookPoint = iota
	PostAtt
	PreFfn
	PostFfn
	// PreAttTimeDecayActivate runs on the raw V6 time decay, before it is
	// turned into a per-channel decay factor.
	PreAttTimeDecayActivate
	// PostAttAdapt runs on the V7 in-context learning rate after its gate.
	PostAttAdapt
	// PostAttControl runs on the V7 decay after its control gate.
	PostAttControl
)

func (p HookPoint) String() string {
	switch p {
	case PreAtt:
		return "pre_att"
	case PostAtt:
		return "post_att"
	case PreFfn:
		return "pre_ffn"
	case PostFfn:
		return "post_ffn"
	case PreAttTimeDecayActivate:
		return "pre_att_time_decay_activate"
	case PostAttAdapt:
		return "post_att_adapt"
	case PostAttControl:
		return "post_att_control"
	default:
		return fmt.Sprintf("HookPoint(%d)", uint8(p))
	}
}

// Supports reports whether v exposes point p.
func (p HookPoint) Supports(v model.Version) bool {
	switch p {
	case PreAtt, PostAtt, PreFfn, PostFfn:
		return true
	case PreAttTimeDecayActivate:
		return v == model.V6
	case PostAttAdapt, PostAttControl:
		return v == model.V7
	}
	return false
}

type Hook struct {
	Point HookPoint
	Layer int
}

// HookFunc builds the operator for one hook against a layer's frame. It runs
// once when a bundle is created; the returned op runs on every step.
type HookFunc func(*Frame) (Op, error)

// HookMap is immutable once handed to a builder.
type HookMap map[Hook]HookFunc

// Frame exposes the per-layer scratch buffers a hook may bind to.
type Frame struct {
	Version model.Version
	Layer   int
	Buffer  *Buffer
}

// Buffer holds one layer's intermediate vectors. Fields that a version does
// not compute stay nil.
type Buffer struct {
	AttX []float32
	AttR []float32
	AttK []float32
	AttV []float32
	AttO []float32

	TimeDecay []float32
	AttW      []float32
	AttA      []float32

	FfnX []float32
	FfnO []float32
}

func newBuffer(v model.Version, emb int) *Buffer {
	b := &Buffer{
		AttX: make([]float32, emb),
		AttR: make([]float32, emb),
		AttK: make([]float32, emb),
		AttV: make([]float32, emb),
		AttO: make([]float32, emb),
		FfnX: make([]float32, emb),
		FfnO: make([]float32, emb),
	}
	switch v {
	case model.V5, model.V6:
		b.TimeDecay = make([]float32, emb)
	case model.V7:
		b.AttW = make([]float32, emb)
		b.AttA = make([]float32, emb)
	}
	return b
}

// layerHooks is the bound op per hook point for a single layer.
type layerHooks map[HookPoint]Op

func (h layerHooks) run(p HookPoint) error {
	if op, ok := h[p]; ok {
		return op.Apply()
	}
	return nil
}

// bindHooks resolves hooks against per-layer frames.
func bindHooks(v model.Version, hooks HookMap, buffers []*Buffer) ([]layerHooks, error) {
	bound := make([]layerHooks, len(buffers))
	for hook, fn := range hooks {
		if hook.Layer < 0 || hook.Layer >= len(buffers) {
			return nil, fmt.Errorf("%w: layer %d out of range", ErrHookPoint, hook.Layer)
		}
		if !hook.Point.Supports(v) {
			return nil, fmt.Errorf("%w: %s on %s", ErrHookPoint, hook.Point, v)
		}
		op, err := fn(&Frame{Version: v, Layer: hook.Layer, Buffer: buffers[hook.Layer]})
		if err != nil {
			return nil, fmt.Errorf("bind hook %s layer %d: %w", hook.Point, hook.Layer, err)
		}
		if bound[hook.Layer] == nil {
			bound[hook.Layer] = make(layerHooks)
		}
		bound[hook.Layer][hook.Point] = op
	}
	return bound, nil
}
