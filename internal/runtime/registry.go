package runtime

import (
	"sync"
	"sync/atomic"

	"github.com/samcharles93/rwkvffi/internal/metrics"
)

// Registry holds at most one Runtime. The lock covers only the pointer
// swap; a replaced runtime lives until its last Handle is released.
type Registry struct {
	mu  sync.RWMutex
	rt  *Runtime
	gen atomic.Uint64
}

// Handle is a counted reference to a runtime. Release must be called
// exactly once; later calls are ignored.
type Handle struct {
	rt   *Runtime
	once sync.Once
}

func (h *Handle) Runtime() *Runtime { return h.rt }

func (h *Handle) Release() {
	h.once.Do(h.rt.release)
}

// Acquire returns the current runtime, or false when none is installed.
func (r *Registry) Acquire() (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.rt == nil {
		return nil, false
	}
	r.rt.acquire()
	return &Handle{rt: r.rt}, true
}

// Install replaces the current runtime with rt and takes over the creator's
// reference.
func (r *Registry) Install(rt *Runtime) {
	r.mu.Lock()
	old := r.rt
	r.rt = rt
	r.mu.Unlock()

	metrics.SessionGeneration.Set(float64(r.gen.Add(1)))
	rt.log.Info("session installed", "generation", r.gen.Load())
	if old != nil {
		old.release()
	}
}

// Reset drops the current runtime, if any.
func (r *Registry) Reset() {
	r.mu.Lock()
	old := r.rt
	r.rt = nil
	r.mu.Unlock()
	if old != nil {
		old.release()
	}
}

// Generation counts installs since the registry was created.
func (r *Registry) Generation() uint64 { return r.gen.Load() }
