package mcfstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/samcharles93/rwkvffi/internal/engine"
	"github.com/samcharles93/rwkvffi/pkg/mcf"
)

const tensorAlign = 8

// Write stores m as a prefab at path. Weights are written as they are held
// by the model, after quantization and rescale.
func Write(path string, m engine.Model, name string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	w, err := mcf.NewWriter(f)
	if err != nil {
		return err
	}

	info := m.Info()
	mi, err := mcf.EncodeModelInfo(mcf.ModelInfo{
		Version:   uint32(info.Version),
		NumLayer:  uint32(info.NumLayer),
		NumEmb:    uint32(info.NumEmb),
		NumHidden: uint32(info.NumHidden),
		NumVocab:  uint32(info.NumVocab),
		NumHead:   uint32(info.NumHead),
		Rescale:   uint32(m.RescaleInterval()),
		Name:      name,
	})
	if err != nil {
		return err
	}
	if err := w.WriteSection(mcf.SectionModelInfo, mcf.ModelInfoVersion, mi); err != nil {
		return err
	}

	codes := make([]uint8, info.NumLayer)
	for l := range codes {
		codes[l] = uint8(m.QuantPlan().For(l))
	}
	if err := w.WriteSection(mcf.SectionQuantInfo, mcf.QuantInfoVersion, mcf.EncodeQuantInfo(mcf.QuantInfo{Layers: codes})); err != nil {
		return err
	}

	sw, err := w.BeginSection(mcf.SectionTensorData, 1)
	if err != nil {
		return err
	}
	var (
		records []mcf.TensorIndexRecord
		buf     []byte
	)
	err = m.Export(func(tensor string, shape []int, data []float32) error {
		if err := sw.Align(tensorAlign); err != nil {
			return err
		}
		off, err := sw.Offset()
		if err != nil {
			return err
		}
		buf = encodeF32(buf[:0], data)
		if _, err := sw.Write(buf); err != nil {
			return fmt.Errorf("write tensor %s: %w", tensor, err)
		}
		dims := make([]uint64, len(shape))
		for i, d := range shape {
			dims[i] = uint64(d)
		}
		records = append(records, mcf.TensorIndexRecord{
			Name:     tensor,
			DType:    mcf.DTypeF32,
			Shape:    dims,
			DataOff:  off,
			DataSize: uint64(len(buf)),
		})
		return nil
	})
	if err != nil {
		return err
	}
	if err := sw.End(); err != nil {
		return err
	}

	idx, err := mcf.EncodeTensorIndexSection(records)
	if err != nil {
		return err
	}
	if err := w.WriteSection(mcf.SectionTensorIndex, mcf.TensorIndexVersion, idx); err != nil {
		return err
	}
	return w.Finalise()
}

func encodeF32(dst []byte, data []float32) []byte {
	dst = append(dst, make([]byte, 4*len(data))...)
	for i, v := range data {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
	return dst
}
