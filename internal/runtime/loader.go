package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/samcharles93/rwkvffi/internal/engine"
	"github.com/samcharles93/rwkvffi/internal/logger"
	"github.com/samcharles93/rwkvffi/internal/mcfstore"
	"github.com/samcharles93/rwkvffi/internal/metrics"
	"github.com/samcharles93/rwkvffi/internal/model"
	"github.com/samcharles93/rwkvffi/internal/safetensors"
)

// LoadOptions configures a load from a raw archive.
type LoadOptions struct {
	// Int8, NF4 and SF4 quantize layers [0, n) at that precision. SF4
	// wins over NF4, which wins over Int8, where ranges overlap. Counts past
	// the model's layer count mean every layer.
	Int8, NF4, SF4 int
	// Rescale halves activations every Rescale layers. Zero disables it.
	Rescale int
	// Extended installs the hook table on V6 and V7 models.
	Extended bool
}

// QuantPlan resolves the layer counts against a model with numLayer layers.
func (o LoadOptions) QuantPlan(numLayer int) model.QuantPlan {
	return model.NewQuantPlan(numLayer, o.Int8, o.NF4, o.SF4)
}

// archive adapts a raw archive to engine.WeightSource.
type archive struct {
	f *safetensors.File
}

func (a archive) Tensor(name string) ([]float32, []int, error) {
	data, info, err := a.f.ReadTensorF32(name)
	if err != nil {
		return nil, nil, err
	}
	return data, info.Shape, nil
}

// Load builds a runtime from a raw archive. The archive mapping is released
// before Load returns.
func Load(ctx context.Context, path string, opts LoadOptions, log logger.Logger) (*Runtime, error) {
	if log == nil {
		log = logger.L()
	}
	start := time.Now()
	rt, err := loadRaw(ctx, path, opts, log)
	metrics.ObserveLoad(metrics.SourceRaw, start, err)
	return rt, err
}

func loadRaw(ctx context.Context, path string, opts LoadOptions, log logger.Logger) (*Runtime, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	defer f.Close()

	info, err := model.DetectInfo(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	log.Info("model detected", "path", path, "version", info.Version.String(),
		"layers", info.NumLayer, "emb", info.NumEmb, "vocab", info.NumVocab, "heads", info.NumHead)

	var hooks engine.HookMap
	if opts.Extended {
		hooks = extendedHooks(info)
	}
	return build(ctx, info, archive{f: f}, log, func(b *engine.Builder) *engine.Builder {
		return b.Quant(opts.QuantPlan(info.NumLayer)).Rescale(opts.Rescale)
	}, hooks)
}

// LoadPrefab builds a runtime from a prefab snapshot without re-quantizing.
func LoadPrefab(ctx context.Context, path string, log logger.Logger) (*Runtime, error) {
	if log == nil {
		log = logger.L()
	}
	start := time.Now()
	rt, err := loadPrefab(ctx, path, log)
	metrics.ObserveLoad(metrics.SourcePrefab, start, err)
	return rt, err
}

func loadPrefab(ctx context.Context, path string, log logger.Logger) (*Runtime, error) {
	f, err := mcfstore.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info := f.Info()
	log.Info("prefab opened", "path", path, "name", f.Name(), "version", info.Version.String(),
		"layers", info.NumLayer, "rescale", f.Rescale())
	return build(ctx, info, f, log, func(b *engine.Builder) *engine.Builder {
		return b.Baked(f.QuantPlan(), f.Rescale())
	}, nil)
}

type loaded struct {
	model  engine.Model
	bundle *engine.Bundle
}

// build acquires the engine context and uploads the model on a fresh
// executor that the returned runtime owns.
func build(ctx context.Context, info model.Info, src engine.WeightSource, log logger.Logger, configure func(*engine.Builder) *engine.Builder, hooks engine.HookMap) (*Runtime, error) {
	exec := NewExecutor()
	cleanup := func(err error) (*Runtime, error) {
		exec.Close()
		return nil, err
	}

	ec, err := Submit(ctx, exec, func(ctx context.Context) (*engine.Context, error) {
		return engine.NewContextBuilder().AutoLimits(info).Build(ctx)
	})
	if err != nil {
		return cleanup(fmt.Errorf("create context: %w", err))
	}
	log.Info("context ready", "adapter", ec.Adapter(), "max_buffer", ec.Limits().MaxBufferSize)

	b := configure(engine.NewBuilder(ec, info, src))
	l, err := Submit(ctx, exec, func(ctx context.Context) (loaded, error) {
		return buildVersion(ctx, b, info.Version, hooks)
	})
	if err != nil {
		return cleanup(fmt.Errorf("build %s: %w", info.Version, err))
	}

	rt := NewRuntime(ec, l.bundle, exec, log)
	rt.model = l.model
	return rt, nil
}

func buildVersion(ctx context.Context, b *engine.Builder, v model.Version, hooks engine.HookMap) (loaded, error) {
	switch v {
	case model.V4:
		m, err := b.BuildV4(ctx)
		if err != nil {
			return loaded{}, err
		}
		bundle, err := engine.NewBundleV4(m, 1, nil)
		return loaded{model: m, bundle: bundle}, err
	case model.V5:
		m, err := b.BuildV5(ctx)
		if err != nil {
			return loaded{}, err
		}
		bundle, err := engine.NewBundleV5(m, 1, nil)
		return loaded{model: m, bundle: bundle}, err
	case model.V6:
		m, err := b.BuildV6(ctx)
		if err != nil {
			return loaded{}, err
		}
		bundle, err := engine.NewBundleV6(m, 1, hooks)
		return loaded{model: m, bundle: bundle}, err
	case model.V7:
		m, err := b.BuildV7(ctx)
		if err != nil {
			return loaded{}, err
		}
		bundle, err := engine.NewBundleV7(m, 1, hooks)
		return loaded{model: m, bundle: bundle}, err
	}
	return loaded{}, fmt.Errorf("%w: %s", model.ErrUnknownVersion, v)
}

// Pack converts a raw archive into a prefab at dst with the quantization
// and rescale of opts baked in. Extended is ignored.
func Pack(ctx context.Context, src, dst, name string, opts LoadOptions, log logger.Logger) error {
	opts.Extended = false
	rt, err := Load(ctx, src, opts, log)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := mcfstore.Write(dst, rt.Model(), name); err != nil {
		return fmt.Errorf("pack %s: %w", dst, err)
	}
	rt.log.Info("prefab written", "path", dst, "name", name)
	return nil
}
