package mcf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ModelInfoVersion is the payload version of SectionModelInfo.
const ModelInfoVersion uint32 = 1

// ModelInfo is the RWKV model description stored in a prefab. Rescale is
// the layer interval at which activations were halved when the weights were
// baked; zero means no rescale.
type ModelInfo struct {
	Version   uint32
	NumLayer  uint32
	NumEmb    uint32
	NumHidden uint32
	NumVocab  uint32
	NumHead   uint32
	Rescale   uint32
	Name      string
}

// modelInfoFixed is the little-endian fixed part of the payload. The name
// follows as raw bytes.
type modelInfoFixed struct {
	Version   uint32
	NumLayer  uint32
	NumEmb    uint32
	NumHidden uint32
	NumVocab  uint32
	NumHead   uint32
	Rescale   uint32
	NameLen   uint32
}

func EncodeModelInfo(mi ModelInfo) ([]byte, error) {
	fixed := modelInfoFixed{
		Version:   mi.Version,
		NumLayer:  mi.NumLayer,
		NumEmb:    mi.NumEmb,
		NumHidden: mi.NumHidden,
		NumVocab:  mi.NumVocab,
		NumHead:   mi.NumHead,
		Rescale:   mi.Rescale,
		NameLen:   uint32(len(mi.Name)),
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, fixed); err != nil {
		return nil, fmt.Errorf("modelinfo: %w", err)
	}
	buf.WriteString(mi.Name)
	return buf.Bytes(), nil
}

func ParseModelInfo(data []byte) (ModelInfo, error) {
	var fixed modelInfoFixed
	size := binary.Size(fixed)
	if len(data) < size {
		return ModelInfo{}, errors.New("modelinfo: payload too small")
	}
	if err := binary.Read(bytes.NewReader(data[:size]), binary.LittleEndian, &fixed); err != nil {
		return ModelInfo{}, fmt.Errorf("modelinfo: %w", err)
	}
	if uint64(size)+uint64(fixed.NameLen) > uint64(len(data)) {
		return ModelInfo{}, errors.New("modelinfo: name out of bounds")
	}
	return ModelInfo{
		Version:   fixed.Version,
		NumLayer:  fixed.NumLayer,
		NumEmb:    fixed.NumEmb,
		NumHidden: fixed.NumHidden,
		NumVocab:  fixed.NumVocab,
		NumHead:   fixed.NumHead,
		Rescale:   fixed.Rescale,
		Name:      string(data[size : size+int(fixed.NameLen)]),
	}, nil
}
