package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/samcharles93/rwkvffi/internal/engine"
	"github.com/samcharles93/rwkvffi/internal/metrics"
)

var ErrStateShape = errors.New("runtime: state size mismatch")

// InitState returns the initial state without touching the live one.
func (r *Runtime) InitState() engine.Tensor {
	return r.state.Init()
}

// StateLen is the element count State returns and SetState expects.
func (r *Runtime) StateLen() int {
	return r.state.InitShape().Len()
}

// ClearState resets the live state to its initial value.
func (r *Runtime) ClearState(ctx context.Context) error {
	metrics.StateOps.WithLabelValues("clear").Inc()
	_, err := Submit(ctx, r.exec, func(context.Context) (struct{}, error) {
		return struct{}{}, r.state.Load(r.state.Init(), 0)
	})
	return err
}

// State copies the live state out.
func (r *Runtime) State(ctx context.Context) ([]float32, error) {
	metrics.StateOps.WithLabelValues("get").Inc()
	t, err := Submit(ctx, r.exec, func(ctx context.Context) (engine.Tensor, error) {
		return r.state.Back(ctx, 0)
	})
	if err != nil {
		return nil, err
	}
	return t.Data, nil
}

// SetState replaces the live state with a copy of data, which must have
// exactly StateLen elements.
func (r *Runtime) SetState(ctx context.Context, data []float32) error {
	metrics.StateOps.WithLabelValues("set").Inc()
	shape := r.state.InitShape()
	if len(data) != shape.Len() {
		return fmt.Errorf("%w: got %d, want %d", ErrStateShape, len(data), shape.Len())
	}
	t, err := r.engine.TensorFromData(shape, append([]float32(nil), data...))
	if err != nil {
		return err
	}
	_, err = Submit(ctx, r.exec, func(context.Context) (struct{}, error) {
		return struct{}{}, r.state.Load(t, 0)
	})
	return err
}
