package engine

import (
	"errors"
	"fmt"
	"slices"
)

var ErrShape = errors.New("engine: shape mismatch")

// Shape is a four dimensional extent, innermost first: [channels, rows,
// batch, unused].
type Shape [4]int

func (s Shape) Len() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

func (s Shape) String() string {
	return fmt.Sprintf("[%d, %d, %d, %d]", s[0], s[1], s[2], s[3])
}

// Tensor is a host-resident f32 tensor.
type Tensor struct {
	Shape Shape
	Data  []float32
}

func NewTensor(shape Shape) Tensor {
	return Tensor{Shape: shape, Data: make([]float32, shape.Len())}
}

func (t Tensor) Clone() Tensor {
	return Tensor{Shape: t.Shape, Data: slices.Clone(t.Data)}
}

// Row returns the r-th channel vector of a [channels, rows, 1, 1] tensor.
func (t Tensor) Row(r int) []float32 {
	c := t.Shape[0]
	return t.Data[r*c : (r+1)*c]
}

func checkLen(shape Shape, n int) error {
	if shape.Len() != n {
		return fmt.Errorf("%w: shape %s wants %d elements, got %d", ErrShape, shape, shape.Len(), n)
	}
	return nil
}
