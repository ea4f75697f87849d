package engine

import (
	"fmt"
	"math"
)

// Op is an operator bound to concrete buffers.
type Op interface {
	Apply() error
}

// OpList runs its ops in order.
type OpList []Op

func (l OpList) Apply() error {
	for _, op := range l {
		if err := op.Apply(); err != nil {
			return err
		}
	}
	return nil
}

// Affine computes x = scale*x + bias in place.
type Affine struct {
	X     []float32
	Scale float32
	Bias  float32
}

func NewAffine(x []float32, scale, bias float32) (*Affine, error) {
	if x == nil {
		return nil, fmt.Errorf("%w: affine on nil buffer", ErrShape)
	}
	return &Affine{X: x, Scale: scale, Bias: bias}, nil
}

func (a *Affine) Apply() error {
	for i, v := range a.X {
		a.X[i] = a.Scale*v + a.Bias
	}
	return nil
}

// ExtV6 shifts the raw time decay by the squashed key: x += tanh(y).
type ExtV6 struct {
	X, Y []float32
}

func NewExtV6(x, y []float32) (*ExtV6, error) {
	if err := sameLen("ext_v6", x, y); err != nil {
		return nil, err
	}
	return &ExtV6{X: x, Y: y}, nil
}

func (e *ExtV6) Apply() error {
	for i, y := range e.Y {
		e.X[i] += float32(math.Tanh(float64(y)))
	}
	return nil
}

// ExtV7 sharpens the gated decay by the learning rate: x = x^(1+y). Decays
// in (0, 1) stay in (0, 1) for non-negative y.
type ExtV7 struct {
	X, Y []float32
}

func NewExtV7(x, y []float32) (*ExtV7, error) {
	if err := sameLen("ext_v7", x, y); err != nil {
		return nil, err
	}
	return &ExtV7{X: x, Y: y}, nil
}

func (e *ExtV7) Apply() error {
	for i, y := range e.Y {
		e.X[i] = float32(math.Pow(float64(e.X[i]), 1+float64(y)))
	}
	return nil
}

func sameLen(op string, x, y []float32) error {
	if x == nil || y == nil || len(x) != len(y) {
		return fmt.Errorf("%w: %s wants equal non-nil buffers, got %d and %d", ErrShape, op, len(x), len(y))
	}
	return nil
}
