// Command rwkvffi builds the C shared library:
//
//	go build -buildmode=c-shared -o librwkvffi.so ./cmd/rwkvffi
//
// Buffers returned by infer_raw_last, infer_raw_full and get_state are
// allocated with malloc and must be released with free_raw or free_state.
package main

/*
#include <stdint.h>
#include <stdlib.h>

typedef struct {
	float temp;
	float top_p;
	uintptr_t top_k;
} Sampler;

typedef struct {
	uintptr_t len;
	float *logits;
} ModelOutput;

typedef struct {
	uintptr_t len;
	float *state;
} StateRaw;

typedef struct {
	uintptr_t version;
	uintptr_t num_layer;
	uintptr_t num_hidden;
	uintptr_t num_emb;
	uintptr_t num_vocab;
	uintptr_t num_head;
} ModelInfoOutput;
*/
import "C"

import (
	"unsafe"

	"github.com/samcharles93/rwkvffi/internal/ffi"
	"github.com/samcharles93/rwkvffi/internal/runtime"
)

var api = ffi.New(&runtime.Registry{}, nil)

func main() {}

// cFloats copies data into a malloc'd array. It returns nil for no data.
func cFloats(data []float32) (*C.float, C.uintptr_t) {
	if len(data) == 0 {
		return nil, 0
	}
	ptr := (*C.float)(C.malloc(C.size_t(len(data)) * C.size_t(unsafe.Sizeof(C.float(0)))))
	copy(unsafe.Slice((*float32)(unsafe.Pointer(ptr)), len(data)), data)
	return ptr, C.uintptr_t(len(data))
}

func goTokens(tokens *C.uint16_t, n C.uintptr_t) []uint16 {
	if tokens == nil || n == 0 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(tokens)), int(n))
}

//export initialize
func initialize(seed C.uint64_t) {
	api.Initialize(uint64(seed))
}

//export reseed
func reseed(seed C.uint64_t) {
	api.Reseed(uint64(seed))
}

//export load
func load(path *C.char, quant, quantNF4, quantSF4 C.uintptr_t) {
	api.Load(C.GoString(path), uint(quant), uint(quantNF4), uint(quantSF4))
}

//export load_with_rescale
func load_with_rescale(path *C.char, quant, quantNF4, quantSF4, rescale C.uintptr_t) {
	api.LoadWithRescale(C.GoString(path), uint(quant), uint(quantNF4), uint(quantSF4), uint(rescale))
}

//export load_extended
func load_extended(path *C.char, quant, quantNF4, quantSF4 C.uintptr_t) {
	api.LoadExtended(C.GoString(path), uint(quant), uint(quantNF4), uint(quantSF4))
}

//export load_prefab
func load_prefab(path *C.char) {
	api.LoadPrefab(C.GoString(path))
}

//export release
func release() {
	api.Release()
}

//export infer
func infer(tokens *C.uint16_t, n C.uintptr_t, sampler C.Sampler) C.uint16_t {
	s := ffi.Sampler{
		Temp: float32(sampler.temp),
		TopP: float32(sampler.top_p),
		TopK: uint(sampler.top_k),
	}
	return C.uint16_t(api.Infer(goTokens(tokens, n), s))
}

//export infer_raw_last
func infer_raw_last(tokens *C.uint16_t, n C.uintptr_t) C.ModelOutput {
	ptr, size := cFloats(api.InferRawLast(goTokens(tokens, n)))
	return C.ModelOutput{len: size, logits: ptr}
}

//export infer_raw_full
func infer_raw_full(tokens *C.uint16_t, n C.uintptr_t) C.ModelOutput {
	ptr, size := cFloats(api.InferRawFull(goTokens(tokens, n)))
	return C.ModelOutput{len: size, logits: ptr}
}

//export free_raw
func free_raw(out C.ModelOutput) {
	C.free(unsafe.Pointer(out.logits))
}

//export clear_state
func clear_state() {
	api.ClearState()
}

//export get_state
func get_state() C.StateRaw {
	ptr, size := cFloats(api.GetState())
	return C.StateRaw{len: size, state: ptr}
}

//export set_state
func set_state(raw C.StateRaw) {
	var data []float32
	if raw.state != nil && raw.len > 0 {
		data = unsafe.Slice((*float32)(unsafe.Pointer(raw.state)), int(raw.len))
	}
	api.SetState(data)
}

//export free_state
func free_state(raw C.StateRaw) {
	C.free(unsafe.Pointer(raw.state))
}

//export get_model_info
func get_model_info() C.ModelInfoOutput {
	info := api.GetModelInfo()
	return C.ModelInfoOutput{
		version:    C.uintptr_t(info.Version),
		num_layer:  C.uintptr_t(info.NumLayer),
		num_hidden: C.uintptr_t(info.NumHidden),
		num_emb:    C.uintptr_t(info.NumEmb),
		num_vocab:  C.uintptr_t(info.NumVocab),
		num_head:   C.uintptr_t(info.NumHead),
	}
}
