package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/samcharles93/rwkvffi/internal/engine"
)

func TestRegistryEmpty(t *testing.T) {
	t.Parallel()

	var r Registry
	if _, ok := r.Acquire(); ok {
		t.Fatalf("Acquire on empty registry succeeded")
	}
	r.Reset()
}

func TestRegistryInstallReplaces(t *testing.T) {
	t.Parallel()

	var r Registry
	first := newFakeRuntime(newFakeBundle(), 4)
	r.Install(first)

	h, ok := r.Acquire()
	if !ok || h.Runtime() != first {
		t.Fatalf("Acquire = %v, %v", h, ok)
	}

	second := newFakeRuntime(newFakeBundle(), 4)
	r.Install(second)
	if r.Generation() != 2 {
		t.Fatalf("Generation = %d, want 2", r.Generation())
	}

	// The replaced runtime stays usable while a handle holds it.
	if _, err := h.Runtime().Infer(context.Background(), []uint32{1}, engine.InferLast); err != nil {
		t.Fatalf("Infer on held runtime: %v", err)
	}
	h.Release()
	h.Release()
	if _, err := first.Infer(context.Background(), []uint32{1}, engine.InferLast); !errors.Is(err, ErrExecutorClosed) {
		t.Fatalf("Infer after last release err = %v, want ErrExecutorClosed", err)
	}

	h2, ok := r.Acquire()
	if !ok || h2.Runtime() != second {
		t.Fatalf("Acquire after install returned the old runtime")
	}
	h2.Release()

	r.Reset()
	if _, ok := r.Acquire(); ok {
		t.Fatalf("Acquire after Reset succeeded")
	}
	if _, err := second.State(context.Background()); !errors.Is(err, ErrExecutorClosed) {
		t.Fatalf("State after Reset err = %v", err)
	}
}

func TestRegistryConcurrentUse(t *testing.T) {
	t.Parallel()

	var r Registry
	r.Install(newFakeRuntime(newFakeBundle(), 2))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			for range 20 {
				h, ok := r.Acquire()
				if !ok {
					t.Errorf("Acquire failed")
					return
				}
				if _, err := h.Runtime().Infer(context.Background(), []uint32{1, 2, 3}, engine.InferLast); err != nil {
					t.Errorf("Infer: %v", err)
				}
				h.Release()
			}
		})
		if i%3 == 0 {
			wg.Go(func() { r.Install(newFakeRuntime(newFakeBundle(), 2)) })
		}
	}
	wg.Wait()
	r.Reset()
}
