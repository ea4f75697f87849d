package runtime

import (
	"context"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/samcharles93/rwkvffi/internal/engine"
	"github.com/samcharles93/rwkvffi/internal/logger"
	"github.com/samcharles93/rwkvffi/internal/model"
	"github.com/samcharles93/rwkvffi/internal/toy"
)

func writeToy(t *testing.T, v model.Version) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.st")
	if err := toy.New(toy.Info(v), 7).Write(path); err != nil {
		t.Fatalf("write toy: %v", err)
	}
	return path
}

func finite(x []float32) bool {
	for _, v := range x {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return true
}

func TestLoadAllVersions(t *testing.T) {
	t.Parallel()

	for _, v := range []model.Version{model.V4, model.V5, model.V6, model.V7} {
		t.Run(v.String(), func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			rt, err := Load(ctx, writeToy(t, v), LoadOptions{}, logger.Nop())
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			defer rt.Close()

			want := toy.Info(v)
			if rt.Info() != want {
				t.Fatalf("Info = %+v, want %+v", rt.Info(), want)
			}
			out, err := rt.Infer(ctx, []uint32{1, 2, 3}, engine.InferLast)
			if err != nil {
				t.Fatalf("Infer: %v", err)
			}
			if len(out) != want.NumVocab || !finite(out) {
				t.Fatalf("logits = %v", out)
			}
		})
	}
}

func TestLoadExtendedHooks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tokens := []uint32{3, 1, 4, 1, 5}
	for _, v := range []model.Version{model.V4, model.V5, model.V6, model.V7} {
		path := writeToy(t, v)

		plain, err := Load(ctx, path, LoadOptions{}, logger.Nop())
		if err != nil {
			t.Fatalf("Load %s: %v", v, err)
		}
		ext, err := Load(ctx, path, LoadOptions{Extended: true}, logger.Nop())
		if err != nil {
			t.Fatalf("Load extended %s: %v", v, err)
		}

		a, err := plain.Infer(ctx, tokens, engine.InferLast)
		if err != nil {
			t.Fatalf("Infer %s: %v", v, err)
		}
		b, err := ext.Infer(ctx, tokens, engine.InferLast)
		if err != nil {
			t.Fatalf("Infer extended %s: %v", v, err)
		}
		plain.Close()
		ext.Close()

		if !finite(b) {
			t.Fatalf("%s extended logits not finite", v)
		}
		same := slices.Equal(a, b)
		switch v {
		case model.V4, model.V5:
			if !same {
				t.Fatalf("%s has no hook points but logits differ", v)
			}
		case model.V6, model.V7:
			if same {
				t.Fatalf("%s hooks had no effect", v)
			}
		}
	}
}

func TestLoadCapsQuantCounts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	opts := LoadOptions{Int8: math.MaxInt32, SF4: 1}
	rt, err := Load(ctx, writeToy(t, model.V5), opts, logger.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer rt.Close()

	want := model.QuantPlan{0: model.QuantSF4, 1: model.QuantInt8}
	if got := rt.Model().QuantPlan(); !maps.Equal(got, want) {
		t.Fatalf("plan = %v, want %v", got, want)
	}
	if got := opts.QuantPlan(toy.Info(model.V5).NumLayer); len(got) != toy.Info(model.V5).NumLayer {
		t.Fatalf("resolved plan has %d layers", len(got))
	}
	if _, err := rt.Infer(ctx, []uint32{1, 2}, engine.InferLast); err != nil {
		t.Fatalf("Infer: %v", err)
	}
}

func TestLoadBadPath(t *testing.T) {
	t.Parallel()

	if _, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.st"), LoadOptions{}, logger.Nop()); err == nil {
		t.Fatalf("Load of missing file succeeded")
	}

	bad := filepath.Join(t.TempDir(), "bad.st")
	if err := os.WriteFile(bad, []byte("not an archive"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(context.Background(), bad, LoadOptions{}, logger.Nop()); err == nil {
		t.Fatalf("Load of garbage succeeded")
	}
}

func TestPackLoadPrefab(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := writeToy(t, model.V6)
	dst := filepath.Join(t.TempDir(), "model.mcf")
	opts := LoadOptions{Int8: 1, NF4: 2, Rescale: 1}

	if err := Pack(ctx, src, dst, "toy", opts, logger.Nop()); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	raw, err := Load(ctx, src, opts, logger.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer raw.Close()
	pre, err := LoadPrefab(ctx, dst, logger.Nop())
	if err != nil {
		t.Fatalf("LoadPrefab: %v", err)
	}
	defer pre.Close()

	if pre.Info() != raw.Info() {
		t.Fatalf("prefab info = %+v, want %+v", pre.Info(), raw.Info())
	}
	if got := pre.Model().QuantPlan(); !maps.Equal(got, raw.Model().QuantPlan()) {
		t.Fatalf("prefab quant plan = %v", got)
	}
	if pre.Model().RescaleInterval() != 1 {
		t.Fatalf("prefab rescale = %d, want 1", pre.Model().RescaleInterval())
	}

	tokens := []uint32{2, 7, 1, 8}
	want, err := raw.Infer(ctx, tokens, engine.InferFull)
	if err != nil {
		t.Fatalf("Infer raw: %v", err)
	}
	got, err := pre.Infer(ctx, tokens, engine.InferFull)
	if err != nil {
		t.Fatalf("Infer prefab: %v", err)
	}
	if !slices.Equal(got, want) {
		t.Fatalf("prefab logits differ from raw load")
	}
}

func TestLoadPrefabRejectsRawArchive(t *testing.T) {
	t.Parallel()

	if _, err := LoadPrefab(context.Background(), writeToy(t, model.V5), logger.Nop()); err == nil {
		t.Fatalf("LoadPrefab of a raw archive succeeded")
	}
}

func TestRuntimeStateMatchesLayout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt, err := Load(ctx, writeToy(t, model.V4), LoadOptions{}, logger.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer rt.Close()

	info := rt.Info()
	if rt.StateLen() != info.NumEmb*info.NumLayer*5 {
		t.Fatalf("StateLen = %d", rt.StateLen())
	}
	if _, err := rt.Infer(ctx, []uint32{1, 2}, engine.InferLast); err != nil {
		t.Fatalf("Infer: %v", err)
	}
	snap, err := rt.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	next, err := rt.Infer(ctx, []uint32{3}, engine.InferLast)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if err := rt.SetState(ctx, snap); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	again, err := rt.Infer(ctx, []uint32{3}, engine.InferLast)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if !slices.Equal(next, again) {
		t.Fatalf("restored state produced different logits")
	}
}
