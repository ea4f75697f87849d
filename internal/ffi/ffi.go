// Package ffi is the entry-point layer behind the exported C functions.
//
// Every operation catches its own errors, logs them once and returns a
// sentinel: 0 for a token, nil for a buffer, a zero ModelInfo for info. A
// returned 0 token is therefore ambiguous; callers that need to tell
// failure apart should use the runtime package or the HTTP API directly.
package ffi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync/atomic"

	"github.com/samcharles93/rwkvffi/internal/engine"
	"github.com/samcharles93/rwkvffi/internal/logger"
	"github.com/samcharles93/rwkvffi/internal/logits"
	"github.com/samcharles93/rwkvffi/internal/model"
	"github.com/samcharles93/rwkvffi/internal/runtime"
)

var (
	ErrNoSession  = errors.New("ffi: no model loaded")
	ErrTokenRange = errors.New("ffi: sampled token does not fit in 16 bits")
)

// Sampler mirrors the C sampler struct.
type Sampler struct {
	Temp float32
	TopP float32
	TopK uint
}

func (s Sampler) config() logits.Config {
	return logits.Config{
		Temperature: s.Temp,
		TopP:        s.TopP,
		TopK:        clampInt(s.TopK),
	}
}

// ModelInfo mirrors the C model info struct. Version is the RWKV
// generation number, 4 through 7.
type ModelInfo struct {
	Version   uint32
	NumLayer  uint32
	NumHidden uint32
	NumEmb    uint32
	NumVocab  uint32
	NumHead   uint32
}

func infoFrom(i model.Info) ModelInfo {
	return ModelInfo{
		Version:   uint32(i.Version),
		NumLayer:  uint32(i.NumLayer),
		NumHidden: uint32(i.NumHidden),
		NumEmb:    uint32(i.NumEmb),
		NumVocab:  uint32(i.NumVocab),
		NumHead:   uint32(i.NumHead),
	}
}

// API carries the registry every entry point works against.
type API struct {
	reg *runtime.Registry
	lg  atomic.Pointer[logger.Logger]
	src logits.Source
}

func New(reg *runtime.Registry, log logger.Logger) *API {
	if log == nil {
		log = logger.L()
	}
	a := &API{reg: reg, src: logits.Global()}
	a.setLogger(log)
	return a
}

func (a *API) setLogger(l logger.Logger) { a.lg.Store(&l) }

// log may be swapped by Initialize while other entry points run.
func (a *API) log() logger.Logger { return *a.lg.Load() }

func (a *API) Registry() *runtime.Registry { return a.reg }

// Initialize installs the pretty logger as the process default and seeds
// the sampler. Calling it again re-seeds.
func (a *API) Initialize(seed uint64) {
	l := logger.Pretty(os.Stderr, logger.ParseLevel("info")).With(logger.ComponentKey, "rwkvffi")
	logger.SetDefault(l)
	a.setLogger(l)
	logits.Seed(seed)
	l.Info("initialized", "seed", seed)
}

func (a *API) Reseed(seed uint64) {
	logits.Seed(seed)
}

func (a *API) fail(op string, err error, args ...any) {
	a.log().Error("operation failed", append([]any{"op", op, "err", err}, args...)...)
}

func (a *API) install(op, path string, rt *runtime.Runtime, err error) {
	if err != nil {
		a.fail(op, err, "path", path)
		return
	}
	a.reg.Install(rt)
}

func clampInt(n uint) int {
	return int(min(n, math.MaxInt32))
}

func quant(int8Layers, nf4Layers, sf4Layers uint) runtime.LoadOptions {
	return runtime.LoadOptions{
		Int8: clampInt(int8Layers),
		NF4:  clampInt(nf4Layers),
		SF4:  clampInt(sf4Layers),
	}
}

// Load replaces the session with a model read from a raw archive. On
// failure the previous session stays active.
func (a *API) Load(path string, int8Layers, nf4Layers, sf4Layers uint) {
	rt, err := runtime.Load(context.Background(), path, quant(int8Layers, nf4Layers, sf4Layers), a.log())
	a.install("load", path, rt, err)
}

func (a *API) LoadWithRescale(path string, int8Layers, nf4Layers, sf4Layers, rescale uint) {
	opts := quant(int8Layers, nf4Layers, sf4Layers)
	opts.Rescale = clampInt(rescale)
	rt, err := runtime.Load(context.Background(), path, opts, a.log())
	a.install("load_with_rescale", path, rt, err)
}

// LoadExtended is Load with the hook table installed on V6 and V7 models.
func (a *API) LoadExtended(path string, int8Layers, nf4Layers, sf4Layers uint) {
	opts := quant(int8Layers, nf4Layers, sf4Layers)
	opts.Extended = true
	rt, err := runtime.Load(context.Background(), path, opts, a.log())
	a.install("load_extended", path, rt, err)
}

func (a *API) LoadPrefab(path string) {
	rt, err := runtime.LoadPrefab(context.Background(), path, a.log())
	a.install("load_prefab", path, rt, err)
}

func widen(tokens []uint16) []uint32 {
	out := make([]uint32, len(tokens))
	for i, t := range tokens {
		out[i] = uint32(t)
	}
	return out
}

// session acquires the current runtime or logs ErrNoSession.
func (a *API) session(op string) (*runtime.Handle, bool) {
	h, ok := a.reg.Acquire()
	if !ok {
		a.fail(op, ErrNoSession)
	}
	return h, ok
}

// Infer runs tokens and samples the next one. It returns 0 on any failure.
func (a *API) Infer(tokens []uint16, s Sampler) uint16 {
	const op = "infer"
	if len(tokens) == 0 {
		a.fail(op, runtime.ErrEmptyInput)
		return 0
	}
	h, ok := a.session(op)
	if !ok {
		return 0
	}
	defer h.Release()

	tok, err := h.Runtime().Sample(context.Background(), widen(tokens), s.config(), a.src)
	if err != nil {
		a.fail(op, err, "tokens", len(tokens), "session", h.Runtime().ID())
		return 0
	}
	if tok < 0 || tok > math.MaxUint16 {
		a.fail(op, fmt.Errorf("%w: %d", ErrTokenRange, tok), "session", h.Runtime().ID())
		return 0
	}
	return uint16(tok)
}

func (a *API) InferRawLast(tokens []uint16) []float32 {
	return a.inferRaw("infer_raw_last", tokens, engine.InferLast)
}

// InferRawFull returns every position's logits, position-major.
func (a *API) InferRawFull(tokens []uint16) []float32 {
	return a.inferRaw("infer_raw_full", tokens, engine.InferFull)
}

func (a *API) inferRaw(op string, tokens []uint16, mode engine.InferOption) []float32 {
	if len(tokens) == 0 {
		a.fail(op, runtime.ErrEmptyInput)
		return nil
	}
	h, ok := a.session(op)
	if !ok {
		return nil
	}
	defer h.Release()

	out, err := h.Runtime().Infer(context.Background(), widen(tokens), mode)
	if err != nil {
		a.fail(op, err, "tokens", len(tokens), "session", h.Runtime().ID())
		return nil
	}
	return out
}

func (a *API) ClearState() {
	h, ok := a.session("clear_state")
	if !ok {
		return
	}
	defer h.Release()
	if err := h.Runtime().ClearState(context.Background()); err != nil {
		a.fail("clear_state", err, "session", h.Runtime().ID())
	}
}

func (a *API) GetState() []float32 {
	h, ok := a.session("get_state")
	if !ok {
		return nil
	}
	defer h.Release()
	out, err := h.Runtime().State(context.Background())
	if err != nil {
		a.fail("get_state", err, "session", h.Runtime().ID())
		return nil
	}
	return out
}

// SetState replaces the live state. A buffer of the wrong length is logged
// and ignored.
func (a *API) SetState(data []float32) {
	h, ok := a.session("set_state")
	if !ok {
		return
	}
	defer h.Release()
	if err := h.Runtime().SetState(context.Background(), data); err != nil {
		a.fail("set_state", err, "len", len(data), "session", h.Runtime().ID())
	}
}

// GetModelInfo returns the zero value when no model is loaded.
func (a *API) GetModelInfo() ModelInfo {
	h, ok := a.session("get_model_info")
	if !ok {
		return ModelInfo{}
	}
	defer h.Release()
	return infoFrom(h.Runtime().Info())
}

// Release drops the current session. Buffers already handed out stay valid.
func (a *API) Release() {
	a.reg.Reset()
}
