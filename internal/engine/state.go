package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samcharles93/rwkvffi/internal/model"
)

// State is the recurrent memory of a bundle, one slot per batch.
type State interface {
	NumBatch() int
	// InitShape is the shape of one batch slot.
	InitShape() Shape
	// Init returns the version-defined initial value of one slot.
	Init() Tensor
	// Load replaces slot batch with t.
	Load(t Tensor, batch int) error
	// Back copies slot batch out to host memory.
	Back(ctx context.Context, batch int) (Tensor, error)
}

// v4MaxInit seeds the running maximum of the V4 WKV accumulator.
const v4MaxInit = -1e30

type state struct {
	mu       sync.Mutex
	info     model.Info
	numBatch int
	data     []float32
}

func newState(info model.Info, numBatch int) *state {
	s := &state{info: info, numBatch: numBatch}
	slot := s.Init()
	s.data = make([]float32, 0, len(slot.Data)*numBatch)
	for range numBatch {
		s.data = append(s.data, slot.Data...)
	}
	return s
}

func (s *state) NumBatch() int { return s.numBatch }

func (s *state) InitShape() Shape {
	rows := s.info.StateRowsPerLayer() * s.info.NumLayer
	return Shape{s.info.NumEmb, rows, 1, 1}
}

func (s *state) Init() Tensor {
	t := NewTensor(s.InitShape())
	if s.info.Version == model.V4 {
		for l := range s.info.NumLayer {
			maxRow := t.Row(5*l + 3)
			for i := range maxRow {
				maxRow[i] = v4MaxInit
			}
		}
	}
	return t
}

func (s *state) slot(batch int) ([]float32, error) {
	if batch < 0 || batch >= s.numBatch {
		return nil, fmt.Errorf("%w: batch %d of %d", ErrBatch, batch, s.numBatch)
	}
	n := s.InitShape().Len()
	return s.data[batch*n : (batch+1)*n], nil
}

func (s *state) Load(t Tensor, batch int) error {
	if err := checkLen(s.InitShape(), len(t.Data)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dst, err := s.slot(batch)
	if err != nil {
		return err
	}
	copy(dst, t.Data)
	return nil
}

func (s *state) Back(ctx context.Context, batch int) (Tensor, error) {
	if err := ctx.Err(); err != nil {
		return Tensor{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	src, err := s.slot(batch)
	if err != nil {
		return Tensor{}, err
	}
	return Tensor{Shape: s.InitShape(), Data: slices.Clone(src)}, nil
}

// layer returns the rows layer l owns in slot batch. Callers hold mu.
func (s *state) layer(batch, l int) []float32 {
	n := s.InitShape().Len()
	per := s.info.StateRowsPerLayer() * s.info.NumEmb
	off := batch*n + l*per
	return s.data[off : off+per]
}

func row(st []float32, i, emb int) []float32 {
	return st[i*emb : (i+1)*emb]
}
