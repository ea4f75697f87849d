package mcfstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/samcharles93/rwkvffi/internal/engine"
	"github.com/samcharles93/rwkvffi/internal/model"
	"github.com/samcharles93/rwkvffi/internal/toy"
	"github.com/samcharles93/rwkvffi/pkg/mcf"
)

func buildV6(t *testing.T, plan model.QuantPlan, rescale int) engine.Model {
	t.Helper()
	ctx := context.Background()
	info := toy.Info(model.V6)
	ec, err := engine.NewContextBuilder().AutoLimits(info).Build(ctx)
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	m, err := engine.NewBuilder(ec, info, toy.New(info, 11)).Quant(plan).Rescale(rescale).BuildV6(ctx)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return m
}

func TestWriteOpenRoundTrip(t *testing.T) {
	t.Parallel()
	m := buildV6(t, model.NewQuantPlan(toy.Info(model.V6).NumLayer, 0, 1, 0), 1)
	path := filepath.Join(t.TempDir(), "model.prefab")
	if err := Write(path, m, "toy-v6"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			t.Fatalf("Close: %v", cerr)
		}
	}()

	if f.Info() != m.Info() {
		t.Fatalf("info = %+v, want %+v", f.Info(), m.Info())
	}
	if f.Rescale() != 1 || f.Name() != "toy-v6" {
		t.Fatalf("rescale = %d name = %q", f.Rescale(), f.Name())
	}
	if f.QuantPlan().For(0) != model.QuantNF4 || f.QuantPlan().For(1) != model.QuantNone {
		t.Fatalf("plan = %v", f.QuantPlan())
	}

	err = m.Export(func(name string, shape []int, data []float32) error {
		got, gotShape, err := f.Tensor(name)
		if err != nil {
			return err
		}
		if !slices.Equal(gotShape, shape) || !slices.Equal(got, data) {
			t.Errorf("tensor %s differs after round trip", name)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
}

func TestTensorMissing(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.prefab")
	if err := Write(path, buildV6(t, nil, 0), ""); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	if _, _, err := f.Tensor("missing.weight"); !errors.Is(err, mcf.ErrTensorNotFound) {
		t.Fatalf("err = %v, want ErrTensorNotFound", err)
	}
	_ = f.Close()
	if _, _, err := f.Tensor(model.TensorEmb); err == nil {
		t.Fatalf("read after close succeeded")
	}
}

func TestOpenRejectsBadPrefabs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage")
	if err := os.WriteFile(garbage, []byte("not a prefab at all, just bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(garbage); err == nil {
		t.Fatalf("garbage opened")
	}

	noInfo := filepath.Join(dir, "noinfo")
	writeSections(t, noInfo, func(w *mcf.Writer) {
		if err := w.WriteSection(mcf.SectionQuantInfo, mcf.QuantInfoVersion, mcf.EncodeQuantInfo(mcf.QuantInfo{})); err != nil {
			t.Fatal(err)
		}
	})
	if _, err := Open(noInfo); !errors.Is(err, mcf.ErrMissingSection) {
		t.Fatalf("missing info err = %v", err)
	}

	badVersion := filepath.Join(dir, "badversion")
	writeSections(t, badVersion, func(w *mcf.Writer) {
		raw, _ := mcf.EncodeModelInfo(mcf.ModelInfo{Version: 3, NumLayer: 1, NumEmb: 4, NumHidden: 4, NumVocab: 4, NumHead: 1})
		if err := w.WriteSection(mcf.SectionModelInfo, mcf.ModelInfoVersion, raw); err != nil {
			t.Fatal(err)
		}
	})
	if _, err := Open(badVersion); !errors.Is(err, model.ErrUnknownVersion) {
		t.Fatalf("bad version err = %v", err)
	}

	badQuant := filepath.Join(dir, "badquant")
	writeSections(t, badQuant, func(w *mcf.Writer) {
		raw, _ := mcf.EncodeModelInfo(mcf.ModelInfo{Version: 5, NumLayer: 1, NumEmb: 4, NumHidden: 4, NumVocab: 4, NumHead: 1})
		if err := w.WriteSection(mcf.SectionModelInfo, mcf.ModelInfoVersion, raw); err != nil {
			t.Fatal(err)
		}
		if err := w.WriteSection(mcf.SectionQuantInfo, mcf.QuantInfoVersion, mcf.EncodeQuantInfo(mcf.QuantInfo{Layers: []uint8{9}})); err != nil {
			t.Fatal(err)
		}
	})
	if _, err := Open(badQuant); !errors.Is(err, ErrUnsupportedPrefab) {
		t.Fatalf("bad quant err = %v", err)
	}
}

func writeSections(t *testing.T, path string, fill func(*mcf.Writer)) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w, err := mcf.NewWriter(f)
	if err != nil {
		t.Fatal(err)
	}
	fill(w)
	if err := w.Finalise(); err != nil {
		t.Fatal(err)
	}
}
