package mcf

import (
	"encoding/binary"
	"errors"
)

// QuantInfoVersion is the payload version of SectionQuantInfo.
const QuantInfoVersion uint32 = 1

// QuantInfo records, per layer, the precision that was baked into the
// weights when the prefab was written. Codes are opaque to this package.
type QuantInfo struct {
	Layers []uint8
}

// Payload: u32 layer count followed by one code byte per layer.
func EncodeQuantInfo(qi QuantInfo) []byte {
	out := make([]byte, 4+len(qi.Layers))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(qi.Layers)))
	copy(out[4:], qi.Layers)
	return out
}

func ParseQuantInfo(data []byte) (QuantInfo, error) {
	if len(data) < 4 {
		return QuantInfo{}, errors.New("quantinfo: payload too small")
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	if uint64(n) > uint64(len(data)-4) {
		return QuantInfo{}, errors.New("quantinfo: layer table out of bounds")
	}
	layers := make([]uint8, n)
	copy(layers, data[4:])
	return QuantInfo{Layers: layers}, nil
}
