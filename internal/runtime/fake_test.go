package runtime

import (
	"context"
	"errors"
	"sync"

	"github.com/samcharles93/rwkvffi/internal/engine"
	"github.com/samcharles93/rwkvffi/internal/logger"
	"github.com/samcharles93/rwkvffi/internal/model"
	"github.com/samcharles93/rwkvffi/internal/toy"
)

// fakeBundle consumes up to chunk tokens per call and emits one logits row
// per token whose entry at the token id is 1.
type fakeBundle struct {
	mu    sync.Mutex
	info  model.Info
	state *fakeState
	stall bool
	err   error
	calls int
}

func newFakeBundle() *fakeBundle {
	info := toy.Info(model.V5)
	return &fakeBundle{info: info, state: &fakeState{data: make([]float32, 6)}}
}

func (b *fakeBundle) Info() model.Info    { return b.info }
func (b *fakeBundle) State() engine.State { return b.state }

func (b *fakeBundle) Infer(_ context.Context, in engine.InferInput) (engine.InferInput, engine.InferOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return in, engine.InferOutput{}, b.err
	}
	if len(in.Batches) != 1 {
		return in, engine.InferOutput{}, engine.ErrBatch
	}
	if b.stall {
		return in, engine.InferOutput{Batches: []engine.Tensor{engine.NewTensor(engine.Shape{b.info.NumVocab, 0, 1, 1})}}, nil
	}

	batch := in.Batches[0]
	n := min(len(batch.Tokens), in.TokenChunkSize)
	rows := n
	if batch.Option == engine.InferLast && n > 0 {
		rows = 1
	}
	out := engine.NewTensor(engine.Shape{b.info.NumVocab, rows, 1, 1})
	for r := range rows {
		tok := batch.Tokens[n-rows+r]
		out.Row(r)[tok] = 1
	}
	rest := engine.NewInferInput([]engine.InferInputBatch{{
		Tokens: batch.Tokens[n:],
		Option: batch.Option,
	}}, in.TokenChunkSize)
	return rest, engine.InferOutput{Batches: []engine.Tensor{out}}, nil
}

type fakeState struct {
	mu   sync.Mutex
	data []float32
}

func (s *fakeState) NumBatch() int           { return 1 }
func (s *fakeState) InitShape() engine.Shape { return engine.Shape{len(s.data), 1, 1, 1} }
func (s *fakeState) Init() engine.Tensor     { return engine.NewTensor(s.InitShape()) }

func (s *fakeState) Load(t engine.Tensor, batch int) error {
	if batch != 0 || len(t.Data) != len(s.data) {
		return errors.New("fake state: bad load")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.data, t.Data)
	return nil
}

func (s *fakeState) Back(_ context.Context, batch int) (engine.Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := engine.NewTensor(s.InitShape())
	copy(t.Data, s.data)
	return t, nil
}

func newFakeRuntime(b *fakeBundle, chunk int) *Runtime {
	ec, err := engine.NewContextBuilder().Build(context.Background())
	if err != nil {
		panic(err)
	}
	rt := NewRuntime(ec, b, NewExecutor(), logger.Nop())
	rt.chunk = chunk
	return rt
}
