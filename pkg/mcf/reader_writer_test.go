package mcf

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writeTestFile(t *testing.T, path string, tensors map[string][]float32) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer func() { _ = f.Close() }()

	w, err := NewWriter(f)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	info, err := EncodeModelInfo(ModelInfo{Version: 7, NumLayer: 2, NumEmb: 4, NumHidden: 8, NumVocab: 3, NumHead: 1, Name: "tiny"})
	if err != nil {
		t.Fatalf("encode info: %v", err)
	}
	if err := w.WriteSection(SectionModelInfo, ModelInfoVersion, info); err != nil {
		t.Fatalf("write model info: %v", err)
	}

	sw, err := w.BeginSection(SectionTensorData, 1)
	if err != nil {
		t.Fatalf("begin data: %v", err)
	}
	var records []TensorIndexRecord
	for _, name := range []string{"b", "a"} {
		data, ok := tensors[name]
		if !ok {
			continue
		}
		if err := sw.Align(alignment); err != nil {
			t.Fatalf("align: %v", err)
		}
		off, err := sw.Offset()
		if err != nil {
			t.Fatalf("offset: %v", err)
		}
		buf := make([]byte, 4*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
		if _, err := sw.Write(buf); err != nil {
			t.Fatalf("write tensor: %v", err)
		}
		records = append(records, TensorIndexRecord{
			Name: name, DType: DTypeF32, Shape: []uint64{uint64(len(data))},
			DataOff: off, DataSize: uint64(len(buf)),
		})
	}
	if err := sw.End(); err != nil {
		t.Fatalf("end data: %v", err)
	}
	idx, err := EncodeTensorIndexSection(records)
	if err != nil {
		t.Fatalf("encode index: %v", err)
	}
	if err := w.WriteSection(SectionTensorIndex, TensorIndexVersion, idx); err != nil {
		t.Fatalf("write index: %v", err)
	}
	if err := w.Finalise(); err != nil {
		t.Fatalf("finalise: %v", err)
	}
}

func TestWriteOpenRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.mcf")
	writeTestFile(t, path, map[string][]float32{"a": {1, 2, 3}, "b": {-4.5}})

	mf, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = mf.Close() }()

	if mf.Header.HeaderSize != headerSize {
		t.Fatalf("header size: got %d", mf.Header.HeaderSize)
	}
	types := make([]uint32, 0, len(mf.Sections))
	for _, s := range mf.Sections {
		types = append(types, s.Type)
	}
	if !slices.IsSorted(types) {
		t.Fatalf("section directory not sorted: %v", types)
	}

	raw, ver, err := mf.RequireSection(SectionModelInfo)
	if err != nil || ver != ModelInfoVersion {
		t.Fatalf("RequireSection: %v (version %d)", err, ver)
	}
	info, err := ParseModelInfo(raw)
	if err != nil {
		t.Fatalf("ParseModelInfo: %v", err)
	}
	if info.Version != 7 || info.NumEmb != 4 || info.Name != "tiny" {
		t.Fatalf("model info mismatch: %+v", info)
	}

	ti, err := mf.TensorIndex()
	if err != nil {
		t.Fatalf("TensorIndex: %v", err)
	}
	if ti.Count() != 2 {
		t.Fatalf("tensor count: got %d", ti.Count())
	}
	if name, _ := ti.Name(0); name != "a" {
		t.Fatalf("index not sorted, first name %q", name)
	}
	got, shape, err := mf.ReadTensorF32(ti, "a")
	if err != nil {
		t.Fatalf("ReadTensorF32: %v", err)
	}
	if !slices.Equal(got, []float32{1, 2, 3}) || !slices.Equal(shape, []uint64{3}) {
		t.Fatalf("tensor a: got %v shape %v", got, shape)
	}
	if _, _, err := mf.ReadTensorF32(ti, "missing"); !errors.Is(err, ErrTensorNotFound) {
		t.Fatalf("expected ErrTensorNotFound, got %v", err)
	}
	if _, _, err := mf.RequireSection(SectionQuantInfo); !errors.Is(err, ErrMissingSection) {
		t.Fatalf("expected ErrMissingSection, got %v", err)
	}
}

func TestParseMatchesOpen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.mcf")
	writeTestFile(t, path, map[string][]float32{"a": {7}})

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	mf, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if mf.unmap != nil {
		t.Fatal("Parse should not own a mapping")
	}
	ti, err := mf.TensorIndex()
	if err != nil {
		t.Fatalf("TensorIndex: %v", err)
	}
	got, _, err := mf.ReadTensorF32(ti, "a")
	if err != nil || !slices.Equal(got, []float32{7}) {
		t.Fatalf("tensor a: %v, %v", got, err)
	}
	if err := mf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if mf.Data != nil {
		t.Fatal("Close should drop the data view")
	}
}

func TestOpenRejectsCorruptFiles(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.mcf")
	writeTestFile(t, path, map[string][]float32{"a": {1}})
	good, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(b []byte) []byte
		wantErr error
	}{
		{"bad-magic", func(b []byte) []byte { b[0] = 'X'; return b }, ErrInvalidMagic},
		{"major", func(b []byte) []byte { binary.LittleEndian.PutUint16(b[4:6], 9); return b }, ErrUnsupportedMajor},
		{"truncated", func(b []byte) []byte { return b[:len(b)-8] }, ErrCorruptFile},
		{"dir-offset", func(b []byte) []byte { binary.LittleEndian.PutUint64(b[16:24], 1<<40); return b }, ErrCorruptFile},
		{"no-sections", func(b []byte) []byte { binary.LittleEndian.PutUint32(b[12:16], 0); return b }, ErrCorruptFile},
		{"short", func(b []byte) []byte { return b[:headerSize-1] }, ErrCorruptFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := tt.mutate(slices.Clone(good))
			_, err := Parse(b)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("want %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestWriterRejectsMisuse(t *testing.T) {
	t.Parallel()
	f, err := os.Create(filepath.Join(t.TempDir(), "x.mcf"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer func() { _ = f.Close() }()

	w, err := NewWriter(f)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteSection(SectionQuantInfo, 1, []byte{1}); err != nil {
		t.Fatalf("WriteSection: %v", err)
	}
	if err := w.WriteSection(SectionQuantInfo, 1, []byte{1}); err == nil {
		t.Fatal("expected duplicate section error")
	}
	sw, err := w.BeginSection(SectionTensorData, 1)
	if err != nil {
		t.Fatalf("BeginSection: %v", err)
	}
	if err := w.WriteSection(SectionModelInfo, 1, nil); err == nil {
		t.Fatal("expected error while a section is open")
	}
	if err := w.Finalise(); err == nil {
		t.Fatal("expected finalise error while a section is open")
	}
	if err := sw.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if _, err := sw.Write([]byte{1}); err == nil {
		t.Fatal("expected write error after End")
	}
	if err := w.Finalise(); err != nil {
		t.Fatalf("Finalise: %v", err)
	}
	if err := w.Finalise(); err == nil {
		t.Fatal("expected error on second Finalise")
	}
}

func TestRecordEncodingLittleEndian(t *testing.T) {
	t.Parallel()
	h := newHeader(2, 0x0102030405060708, 1024)
	raw := encode(nil, h)
	if len(raw) != headerSize {
		t.Fatalf("header length: got %d", len(raw))
	}
	if string(raw[:4]) != MagicMCF {
		t.Fatalf("magic: % x", raw[:4])
	}
	if raw[16] != 0x08 || raw[23] != 0x01 {
		t.Fatalf("dir offset not little-endian: % x", raw[16:24])
	}
	if got, ok := decode[Header](raw); !ok || got != h {
		t.Fatalf("header decode mismatch: %+v", got)
	}
	if end, ok := h.dirEnd(); !ok || end != 0x0102030405060708+2*dirEntrySize {
		t.Fatalf("dirEnd: %#x %v", end, ok)
	}

	e := DirEntry{Type: uint32(SectionTensorData), Version: 1, Offset: 64, Size: 12}
	eraw := encode(nil, e)
	if len(eraw) != dirEntrySize {
		t.Fatalf("entry length: got %d", len(eraw))
	}
	if got, ok := decode[DirEntry](eraw); !ok || got != e {
		t.Fatalf("entry decode mismatch: %+v", got)
	}
	if _, ok := decode[DirEntry](eraw[:dirEntrySize-1]); ok {
		t.Fatal("short entry decoded")
	}
	if e.End() != 76 || e.SectionType().String() != "tensor_data" {
		t.Fatalf("entry helpers: %d %s", e.End(), e.SectionType())
	}
	if s := SectionType(0x99).String(); s != "section(0x99)" {
		t.Fatalf("unknown section name: %s", s)
	}
}

func TestQuantInfoRoundTrip(t *testing.T) {
	t.Parallel()
	in := QuantInfo{Layers: []uint8{3, 2, 1, 0}}
	out, err := ParseQuantInfo(EncodeQuantInfo(in))
	if err != nil {
		t.Fatalf("ParseQuantInfo: %v", err)
	}
	if !slices.Equal(out.Layers, in.Layers) {
		t.Fatalf("layers: got %v", out.Layers)
	}
	if _, err := ParseQuantInfo([]byte{9, 0, 0, 0, 1}); err == nil {
		t.Fatal("expected bounds error")
	}
}

func TestTensorIndexRejectsDuplicates(t *testing.T) {
	t.Parallel()
	_, err := EncodeTensorIndexSection([]TensorIndexRecord{{Name: "x"}, {Name: "x"}})
	if err == nil {
		t.Fatal("expected duplicate name error")
	}
}
