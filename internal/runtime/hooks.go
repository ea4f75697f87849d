package runtime

import (
	"github.com/samcharles93/rwkvffi/internal/engine"
	"github.com/samcharles93/rwkvffi/internal/model"
)

// v7AdaptScale doubles the in-context learning rate of every V7 layer.
const v7AdaptScale = 2.0

// extendedHooks builds the hook table for extended loads. Versions without
// extension points get nil.
func extendedHooks(info model.Info) engine.HookMap {
	if !info.Version.SupportsHooks() {
		return nil
	}
	switch info.Version {
	case model.V6:
		return hooksV6(info.NumLayer)
	case model.V7:
		return hooksV7(info.NumLayer)
	}
	return nil
}

func hooksV6(numLayer int) engine.HookMap {
	hooks := make(engine.HookMap, numLayer)
	for l := range numLayer {
		hooks[engine.Hook{Point: engine.PreAttTimeDecayActivate, Layer: l}] = func(f *engine.Frame) (engine.Op, error) {
			op, err := engine.NewExtV6(f.Buffer.TimeDecay, f.Buffer.AttK)
			if err != nil {
				return nil, err
			}
			return engine.OpList{op}, nil
		}
	}
	return hooks
}

func hooksV7(numLayer int) engine.HookMap {
	hooks := make(engine.HookMap, 2*numLayer)
	for l := range numLayer {
		hooks[engine.Hook{Point: engine.PostAttAdapt, Layer: l}] = func(f *engine.Frame) (engine.Op, error) {
			op, err := engine.NewAffine(f.Buffer.AttA, v7AdaptScale, 0)
			if err != nil {
				return nil, err
			}
			return engine.OpList{op}, nil
		}
		hooks[engine.Hook{Point: engine.PostAttControl, Layer: l}] = func(f *engine.Frame) (engine.Op, error) {
			op, err := engine.NewExtV7(f.Buffer.AttW, f.Buffer.AttA)
			if err != nil {
				return nil, err
			}
			return engine.OpList{op}, nil
		}
	}
	return hooks
}
