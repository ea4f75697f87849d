package model

import (
	"errors"
	"fmt"
)

// Info describes a loaded model. It is produced once per load and never
// mutated afterwards.
type Info struct {
	Version   Version
	NumLayer  int
	NumEmb    int
	NumHidden int
	NumVocab  int
	NumHead   int
}

var ErrInvalidInfo = errors.New("model: invalid info")

// Validate checks that the shape metadata is internally consistent.
func (i Info) Validate() error {
	if !i.Version.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownVersion, i.Version)
	}
	switch {
	case i.NumLayer <= 0:
		return fmt.Errorf("%w: num_layer=%d", ErrInvalidInfo, i.NumLayer)
	case i.NumEmb <= 0:
		return fmt.Errorf("%w: num_emb=%d", ErrInvalidInfo, i.NumEmb)
	case i.NumHidden <= 0:
		return fmt.Errorf("%w: num_hidden=%d", ErrInvalidInfo, i.NumHidden)
	case i.NumVocab <= 0:
		return fmt.Errorf("%w: num_vocab=%d", ErrInvalidInfo, i.NumVocab)
	case i.NumHead <= 0:
		return fmt.Errorf("%w: num_head=%d", ErrInvalidInfo, i.NumHead)
	case i.NumEmb%i.NumHead != 0:
		return fmt.Errorf("%w: num_emb %d not divisible by num_head %d", ErrInvalidInfo, i.NumEmb, i.NumHead)
	}
	return nil
}

// HeadSize is the per-head channel count. V4 has a single head spanning
// the full embedding.
func (i Info) HeadSize() int {
	if i.NumHead == 0 {
		return 0
	}
	return i.NumEmb / i.NumHead
}

// StateRowsPerLayer returns how many embedding-wide rows of recurrent state
// each layer owns.
func (i Info) StateRowsPerLayer() int {
	if i.Version == V4 {
		return 5
	}
	return i.HeadSize() + 2
}

// StateLen is the element count of the full recurrent state for one batch.
func (i Info) StateLen() int {
	return i.NumEmb * i.StateRowsPerLayer() * i.NumLayer
}
