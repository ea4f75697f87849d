// Package mcf implements the Model Container File format used for prefab
// RWKV snapshots.
//
// MCF is a single-file, memory-mappable container. A prefab holds the model
// description, the quantization plan that was baked into the weights, a
// tensor index and the tensor payloads. It describes structure and data only.
//
// Layout: a fixed 40-byte header, 8-byte aligned section payloads, and a
// directory of 24-byte entries sorted by section type. All integers are
// little endian.
package mcf

import (
	"encoding/binary"
	"fmt"
)

const (
	// MagicMCF is the file magic, encoded as "MCF\0".
	MagicMCF = "MCF\x00"

	// CurrentMajor changes only on breaking format changes.
	CurrentMajor uint16 = 1
	// CurrentMinor may add optional sections or fields.
	CurrentMinor uint16 = 0
)

const (
	headerSize   = 40
	dirEntrySize = 24
	alignment    = 8
)

type SectionType uint32

const (
	SectionModelInfo   SectionType = 0x0001
	SectionQuantInfo   SectionType = 0x0002
	SectionTensorIndex SectionType = 0x0003
	SectionTensorData  SectionType = 0x0004
)

func (t SectionType) String() string {
	switch t {
	case SectionModelInfo:
		return "model_info"
	case SectionQuantInfo:
		return "quant_info"
	case SectionTensorIndex:
		return "tensor_index"
	case SectionTensorData:
		return "tensor_data"
	default:
		return fmt.Sprintf("section(%#x)", uint32(t))
	}
}

// Header is the fixed file prefix. Field order is the wire order.
type Header struct {
	Magic        [4]byte
	Major        uint16
	Minor        uint16
	HeaderSize   uint32
	SectionCount uint32
	DirOffset    uint64
	FileSize     uint64
	Flags        uint64
}

func newHeader(sections int, dirOffset, fileSize int64) Header {
	h := Header{
		Major:        CurrentMajor,
		Minor:        CurrentMinor,
		HeaderSize:   headerSize,
		SectionCount: uint32(sections),
		DirOffset:    uint64(dirOffset),
		FileSize:     uint64(fileSize),
	}
	copy(h.Magic[:], MagicMCF)
	return h
}

// dirEnd is the offset one past the section directory, or false on
// overflow.
func (h Header) dirEnd() (uint64, bool) {
	end := h.DirOffset + uint64(h.SectionCount)*dirEntrySize
	return end, end >= h.DirOffset
}

// DirEntry locates one section payload by absolute offset.
type DirEntry struct {
	Type    uint32
	Version uint32
	Offset  uint64
	Size    uint64
}

func (e DirEntry) End() uint64 {
	return e.Offset + e.Size
}

func (e DirEntry) SectionType() SectionType { return SectionType(e.Type) }

// encode appends the little endian form of a fixed-size record to dst.
func encode[T Header | DirEntry](dst []byte, v T) []byte {
	out, err := binary.Append(dst, binary.LittleEndian, v)
	if err != nil {
		// Header and DirEntry are fixed size.
		panic(err)
	}
	return out
}

func decode[T Header | DirEntry](src []byte) (T, bool) {
	var v T
	_, err := binary.Decode(src, binary.LittleEndian, &v)
	return v, err == nil
}
