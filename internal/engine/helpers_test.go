package engine

import (
	"context"
	"testing"

	"github.com/samcharles93/rwkvffi/internal/model"
	"github.com/samcharles93/rwkvffi/internal/toy"
)

var allVersions = []model.Version{model.V4, model.V5, model.V6, model.V7}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	c, err := NewContextBuilder().Build(context.Background())
	if err != nil {
		t.Fatalf("Build context: %v", err)
	}
	return c
}

func buildModel(t *testing.T, b *Builder) Model {
	t.Helper()
	ctx := context.Background()
	var (
		m   Model
		err error
	)
	switch b.info.Version {
	case model.V4:
		m, err = b.BuildV4(ctx)
	case model.V5:
		m, err = b.BuildV5(ctx)
	case model.V6:
		m, err = b.BuildV6(ctx)
	case model.V7:
		m, err = b.BuildV7(ctx)
	}
	if err != nil {
		t.Fatalf("build %s: %v", b.info.Version, err)
	}
	return m
}

func toyBundle(t *testing.T, v model.Version, hooks HookMap) *Bundle {
	t.Helper()
	info := toy.Info(v)
	m := buildModel(t, NewBuilder(newTestContext(t), info, toy.New(info, 42)))
	b, err := NewBundle(m, 1, hooks)
	if err != nil {
		t.Fatalf("NewBundle: %v", err)
	}
	return b
}

// runAll drives Infer until every token is consumed and returns the rows of
// the final step.
func runAll(t *testing.T, b *Bundle, tokens []uint32, opt InferOption) [][]float32 {
	t.Helper()
	in := NewInferInput([]InferInputBatch{{Tokens: tokens, Option: opt}}, 0)
	var rows [][]float32
	for in.NumToken() > 0 {
		var (
			out InferOutput
			err error
		)
		in, out, err = b.Infer(context.Background(), in)
		if err != nil {
			t.Fatalf("Infer: %v", err)
		}
		logits := out.Batches[0]
		if opt == InferLast {
			rows = rows[:0]
		}
		for r := range logits.Shape[1] {
			rows = append(rows, append([]float32(nil), logits.Row(r)...))
		}
	}
	return rows
}
