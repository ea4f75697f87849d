package mcf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"slices"
	"sort"
	"strings"
)

// TensorIndexVersion is the on-disk version of the tensor index payload.
const TensorIndexVersion uint32 = 1

// Tensor index layout: header | entries | dims | strings, all little-endian.
// Offsets in the header are relative to the section start.
const (
	tensorIndexHeaderSize = 48
	tensorIndexEntrySize  = 40
)

// TensorIndexFlagSortedByName allows binary-search lookup.
const TensorIndexFlagSortedByName uint32 = 1 << 0

type TensorDType uint32

const (
	DTypeUnknown TensorDType = iota
	DTypeF32
	DTypeF16
	DTypeBF16
)

type TensorIndexHeader struct {
	Version     uint32
	Flags       uint32
	TensorCount uint32
	DimsCount   uint32
	EntriesOff  uint64
	DimsOff     uint64
	StringsOff  uint64
	StringsSize uint64
}

// TensorIndexEntry is the fixed-size record for one tensor. DataOff is an
// absolute file offset.
type TensorIndexEntry struct {
	NameOff  uint32
	NameLen  uint32
	DType    TensorDType
	Rank     uint32
	DimOff   uint32
	DataOff  uint64
	DataSize uint64
}

// TensorIndexRecord is the input to EncodeTensorIndexSection.
type TensorIndexRecord struct {
	Name     string
	DType    TensorDType
	Shape    []uint64
	DataOff  uint64
	DataSize uint64
}

// TensorIndex is a validated view over a tensor index payload. It aliases
// the section bytes.
type TensorIndex struct {
	raw []byte
	hdr TensorIndexHeader
}

var errBadTensorIndex = errors.New("mcf: corrupt tensor index section")

// ParseTensorIndexSection validates the payload of SectionTensorIndex.
func ParseTensorIndexSection(sec []byte) (*TensorIndex, error) {
	if len(sec) < tensorIndexHeaderSize {
		return nil, errBadTensorIndex
	}
	le := binary.LittleEndian
	h := TensorIndexHeader{
		Version:     le.Uint32(sec[0:4]),
		Flags:       le.Uint32(sec[4:8]),
		TensorCount: le.Uint32(sec[8:12]),
		DimsCount:   le.Uint32(sec[12:16]),
		EntriesOff:  le.Uint64(sec[16:24]),
		DimsOff:     le.Uint64(sec[24:32]),
		StringsOff:  le.Uint64(sec[32:40]),
		StringsSize: le.Uint64(sec[40:48]),
	}
	if h.Version != TensorIndexVersion {
		return nil, ErrUnsupportedPayload
	}
	if h.TensorCount == 0 {
		return nil, errBadTensorIndex
	}

	secLen := uint64(len(sec))
	within := func(off, size uint64) bool { return off <= secLen && size <= secLen-off }
	if !within(h.EntriesOff, uint64(h.TensorCount)*tensorIndexEntrySize) ||
		!within(h.DimsOff, uint64(h.DimsCount)*8) ||
		!within(h.StringsOff, h.StringsSize) {
		return nil, errBadTensorIndex
	}

	ti := &TensorIndex{raw: sec, hdr: h}
	for i := range int(h.TensorCount) {
		e := ti.entry(i)
		if uint64(e.NameOff)+uint64(e.NameLen) > h.StringsSize {
			return nil, errBadTensorIndex
		}
		if uint64(e.DimOff)+uint64(e.Rank) > uint64(h.DimsCount) {
			return nil, errBadTensorIndex
		}
	}
	return ti, nil
}

func (ti *TensorIndex) entry(i int) TensorIndexEntry {
	b := ti.raw[ti.hdr.EntriesOff+uint64(i)*tensorIndexEntrySize:]
	le := binary.LittleEndian
	return TensorIndexEntry{
		NameOff:  le.Uint32(b[0:4]),
		NameLen:  le.Uint32(b[4:8]),
		DType:    TensorDType(le.Uint32(b[8:12])),
		Rank:     le.Uint32(b[12:16]),
		DimOff:   le.Uint32(b[16:20]),
		DataOff:  le.Uint64(b[24:32]),
		DataSize: le.Uint64(b[32:40]),
	}
}

func (ti *TensorIndex) Count() int {
	return int(ti.hdr.TensorCount)
}

func (ti *TensorIndex) Entry(i int) (TensorIndexEntry, error) {
	if i < 0 || i >= ti.Count() {
		return TensorIndexEntry{}, errBadTensorIndex
	}
	return ti.entry(i), nil
}

func (ti *TensorIndex) nameBytes(i int) []byte {
	e := ti.entry(i)
	off := ti.hdr.StringsOff + uint64(e.NameOff)
	return ti.raw[off : off+uint64(e.NameLen)]
}

func (ti *TensorIndex) Name(i int) (string, error) {
	if i < 0 || i >= ti.Count() {
		return "", errBadTensorIndex
	}
	return string(ti.nameBytes(i)), nil
}

func (ti *TensorIndex) Shape(i int) ([]uint64, error) {
	e, err := ti.Entry(i)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, e.Rank)
	for d := range out {
		off := ti.hdr.DimsOff + uint64(e.DimOff+uint32(d))*8
		out[d] = binary.LittleEndian.Uint64(ti.raw[off : off+8])
	}
	return out, nil
}

// Find returns the entry index for name, in O(log n) when the index is sorted.
func (ti *TensorIndex) Find(name string) (int, bool) {
	if ti == nil {
		return -1, false
	}
	key := []byte(name)
	n := ti.Count()
	if ti.hdr.Flags&TensorIndexFlagSortedByName != 0 {
		i := sort.Search(n, func(i int) bool { return bytes.Compare(ti.nameBytes(i), key) >= 0 })
		if i < n && bytes.Equal(ti.nameBytes(i), key) {
			return i, true
		}
		return -1, false
	}
	for i := range n {
		if bytes.Equal(ti.nameBytes(i), key) {
			return i, true
		}
	}
	return -1, false
}

// TensorData returns a zero-copy view of a tensor payload.
func (ti *TensorIndex) TensorData(f *File, i int) ([]byte, error) {
	if f == nil || f.Data == nil {
		return nil, ErrCorruptFile
	}
	e, err := ti.Entry(i)
	if err != nil {
		return nil, err
	}
	end := e.DataOff + e.DataSize
	if end < e.DataOff || end > uint64(len(f.Data)) {
		return nil, ErrCorruptFile
	}
	return f.Data[e.DataOff:end], nil
}

// EncodeTensorIndexSection builds a sorted tensor index payload.
func EncodeTensorIndexSection(records []TensorIndexRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, errors.New("mcf: tensor index requires at least one record")
	}
	recs := slices.Clone(records)
	slices.SortFunc(recs, func(a, b TensorIndexRecord) int { return strings.Compare(a.Name, b.Name) })

	var (
		dims    []uint64
		strs    []byte
		entries = make([]TensorIndexEntry, 0, len(recs))
	)
	for i, r := range recs {
		if r.Name == "" {
			return nil, errors.New("mcf: tensor name must be non-empty")
		}
		if i > 0 && recs[i-1].Name == r.Name {
			return nil, errors.New("mcf: duplicate tensor name " + r.Name)
		}
		entries = append(entries, TensorIndexEntry{
			NameOff:  uint32(len(strs)),
			NameLen:  uint32(len(r.Name)),
			DType:    r.DType,
			Rank:     uint32(len(r.Shape)),
			DimOff:   uint32(len(dims)),
			DataOff:  r.DataOff,
			DataSize: r.DataSize,
		})
		strs = append(strs, r.Name...)
		dims = append(dims, r.Shape...)
	}

	h := TensorIndexHeader{
		Version:     TensorIndexVersion,
		Flags:       TensorIndexFlagSortedByName,
		TensorCount: uint32(len(entries)),
		DimsCount:   uint32(len(dims)),
		EntriesOff:  tensorIndexHeaderSize,
	}
	h.DimsOff = h.EntriesOff + uint64(len(entries))*tensorIndexEntrySize
	h.StringsOff = h.DimsOff + uint64(len(dims))*8
	h.StringsSize = uint64(len(strs))

	out := make([]byte, h.StringsOff+h.StringsSize)
	le := binary.LittleEndian
	le.PutUint32(out[0:4], h.Version)
	le.PutUint32(out[4:8], h.Flags)
	le.PutUint32(out[8:12], h.TensorCount)
	le.PutUint32(out[12:16], h.DimsCount)
	le.PutUint64(out[16:24], h.EntriesOff)
	le.PutUint64(out[24:32], h.DimsOff)
	le.PutUint64(out[32:40], h.StringsOff)
	le.PutUint64(out[40:48], h.StringsSize)

	for i, e := range entries {
		b := out[h.EntriesOff+uint64(i)*tensorIndexEntrySize:]
		le.PutUint32(b[0:4], e.NameOff)
		le.PutUint32(b[4:8], e.NameLen)
		le.PutUint32(b[8:12], uint32(e.DType))
		le.PutUint32(b[12:16], e.Rank)
		le.PutUint32(b[16:20], e.DimOff)
		le.PutUint64(b[24:32], e.DataOff)
		le.PutUint64(b[32:40], e.DataSize)
	}
	for i, d := range dims {
		le.PutUint64(out[h.DimsOff+uint64(i)*8:], d)
	}
	copy(out[h.StringsOff:], strs)
	return out, nil
}
