package engine

import "errors"

// DefaultTokenChunkSize bounds how many tokens of a batch one Infer call
// consumes.
const DefaultTokenChunkSize = 128

var (
	ErrBatch = errors.New("engine: batch count mismatch")
	ErrToken = errors.New("engine: token out of vocabulary")
)

type InferOption uint8

const (
	// InferLast keeps only the logits of the final consumed token.
	InferLast InferOption = iota
	// InferFull keeps logits for every consumed token.
	InferFull
)

func (o InferOption) String() string {
	if o == InferFull {
		return "full"
	}
	return "last"
}

type InferInputBatch struct {
	Tokens []uint32
	Option InferOption
}

// InferInput is the pending work of every batch slot. Infer returns the
// unconsumed remainder as a new InferInput.
type InferInput struct {
	Batches        []InferInputBatch
	TokenChunkSize int
}

func NewInferInput(batches []InferInputBatch, tokenChunkSize int) InferInput {
	return InferInput{Batches: batches, TokenChunkSize: tokenChunkSize}
}

// NumToken is the total number of pending tokens.
func (in InferInput) NumToken() int {
	n := 0
	for _, b := range in.Batches {
		n += len(b.Tokens)
	}
	return n
}

func (in InferInput) chunkSize() int {
	if in.TokenChunkSize > 0 {
		return in.TokenChunkSize
	}
	return DefaultTokenChunkSize
}

// InferOutput holds, per batch slot, a [vocab, rows, 1, 1] logits tensor for
// the step. Rows is zero when the slot had no pending tokens.
type InferOutput struct {
	Batches []Tensor
}
