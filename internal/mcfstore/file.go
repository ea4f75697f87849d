// Package mcfstore reads and writes prefab snapshots: RWKV models whose
// quantization and rescale are already baked into MCF tensor data.
package mcfstore

import (
	"errors"
	"fmt"
	"math"

	"github.com/samcharles93/rwkvffi/internal/model"
	"github.com/samcharles93/rwkvffi/pkg/mcf"
)

var ErrUnsupportedPrefab = errors.New("mcfstore: unsupported prefab")

// File is an open prefab. It implements engine.WeightSource.
type File struct {
	file    *mcf.File
	index   *mcf.TensorIndex
	info    model.Info
	plan    model.QuantPlan
	rescale int
	name    string
}

func Open(path string) (*File, error) {
	mf, err := mcf.Open(path)
	if err != nil {
		return nil, err
	}
	cleanup := func(err error) (*File, error) {
		_ = mf.Close()
		return nil, fmt.Errorf("open prefab %s: %w", path, err)
	}

	raw, ver, err := mf.RequireSection(mcf.SectionModelInfo)
	if err != nil {
		return cleanup(err)
	}
	if ver != mcf.ModelInfoVersion {
		return cleanup(fmt.Errorf("%w: model info version %d", ErrUnsupportedPrefab, ver))
	}
	mi, err := mcf.ParseModelInfo(raw)
	if err != nil {
		return cleanup(err)
	}
	info, err := infoFromMCF(mi)
	if err != nil {
		return cleanup(err)
	}

	plan := make(model.QuantPlan)
	if s := mf.Section(mcf.SectionQuantInfo); s != nil {
		qi, err := mcf.ParseQuantInfo(mf.SectionData(s))
		if err != nil {
			return cleanup(err)
		}
		for l, code := range qi.Layers {
			q := model.Quant(code)
			if q > model.QuantSF4 {
				return cleanup(fmt.Errorf("%w: layer %d quant code %d", ErrUnsupportedPrefab, l, code))
			}
			if q != model.QuantNone {
				plan[l] = q
			}
		}
	}

	index, err := mf.TensorIndex()
	if err != nil {
		return cleanup(err)
	}
	if _, _, err := mf.RequireSection(mcf.SectionTensorData); err != nil {
		return cleanup(err)
	}

	return &File{
		file:    mf,
		index:   index,
		info:    info,
		plan:    plan.Clip(info.NumLayer),
		rescale: int(mi.Rescale),
		name:    mi.Name,
	}, nil
}

func infoFromMCF(mi mcf.ModelInfo) (model.Info, error) {
	if mi.Version > math.MaxUint8 {
		return model.Info{}, fmt.Errorf("%w: %d", model.ErrUnknownVersion, mi.Version)
	}
	info := model.Info{
		Version:   model.Version(mi.Version),
		NumLayer:  int(mi.NumLayer),
		NumEmb:    int(mi.NumEmb),
		NumHidden: int(mi.NumHidden),
		NumVocab:  int(mi.NumVocab),
		NumHead:   int(mi.NumHead),
	}
	return info, info.Validate()
}

func (f *File) Close() error {
	if f == nil || f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	f.index = nil
	return err
}

func (f *File) Info() model.Info           { return f.info }
func (f *File) QuantPlan() model.QuantPlan { return f.plan }
func (f *File) Rescale() int               { return f.rescale }
func (f *File) Name() string               { return f.name }

// Tensor copies a baked f32 tensor out of the mapping.
func (f *File) Tensor(name string) ([]float32, []int, error) {
	if f == nil || f.file == nil {
		return nil, nil, errors.New("mcfstore: file closed")
	}
	data, dims, err := f.file.ReadTensorF32(f.index, name)
	if err != nil {
		return nil, nil, err
	}
	shape, err := shapeToInt(dims)
	if err != nil {
		return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	return data, shape, nil
}

func shapeToInt(shape []uint64) ([]int, error) {
	if len(shape) == 0 {
		return nil, errors.New("empty shape")
	}
	out := make([]int, len(shape))
	for i, v := range shape {
		if v == 0 {
			return nil, errors.New("invalid dim 0")
		}
		if v > math.MaxInt32 {
			return nil, errors.New("dimension too large")
		}
		out[i] = int(v)
	}
	return out, nil
}
