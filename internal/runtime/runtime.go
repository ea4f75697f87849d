// Package runtime manages the single inference session a process hosts:
// loading models, driving the multi-step inference loop, sampling and
// recurrent state access.
package runtime

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/samcharles93/rwkvffi/internal/engine"
	"github.com/samcharles93/rwkvffi/internal/logger"
	"github.com/samcharles93/rwkvffi/internal/model"
)

// Bundle is the part of engine.Bundle the runtime drives.
type Bundle interface {
	Info() model.Info
	State() engine.State
	Infer(ctx context.Context, in engine.InferInput) (engine.InferInput, engine.InferOutput, error)
}

// Runtime is one loaded session. It is immutable after construction; the
// recurrent state changes through it.
type Runtime struct {
	id     uuid.UUID
	info   model.Info
	engine *engine.Context
	bundle Bundle
	state  engine.State
	model  engine.Model
	exec   *Executor
	log    logger.Logger
	chunk  int

	refs atomic.Int64
}

// NewRuntime wraps a bundle. The runtime takes ownership of exec and holds
// one reference, released by Close or by a Registry replacing it.
func NewRuntime(ec *engine.Context, b Bundle, exec *Executor, log logger.Logger) *Runtime {
	if log == nil {
		log = logger.L()
	}
	id := uuid.New()
	r := &Runtime{
		id:     id,
		info:   b.Info(),
		engine: ec,
		bundle: b,
		state:  b.State(),
		exec:   exec,
		log:    log.With(logger.ComponentKey, "runtime", "session", id.String()),
		chunk:  engine.DefaultTokenChunkSize,
	}
	r.refs.Store(1)
	return r
}

func (r *Runtime) ID() string       { return r.id.String() }
func (r *Runtime) Info() model.Info { return r.info }

// Model is the loaded model, or nil when the runtime wraps a bare bundle.
func (r *Runtime) Model() engine.Model { return r.model }

func (r *Runtime) acquire() { r.refs.Add(1) }

func (r *Runtime) release() {
	if r.refs.Add(-1) == 0 {
		r.exec.Close()
		r.log.Debug("session closed")
	}
}

// Close drops the creator's reference.
func (r *Runtime) Close() { r.release() }
