package mcf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

// File is a validated container. Data is either a read-only mapping or an
// in-memory copy; every view handed out aliases it.
type File struct {
	Data     []byte
	Header   Header
	Sections []DirEntry

	unmap func([]byte) error
}

// Open maps an MCF file read-only and validates its structure. When mmap is
// unavailable it reads the file into memory instead. The returned file must
// be closed to release the mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := stat.Size()
	if size < headerSize || size > math.MaxInt {
		return nil, fmt.Errorf("%w: file size %d", ErrCorruptFile, size)
	}

	if data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED); err == nil {
		mf, err := Parse(data)
		if err != nil {
			_ = unix.Munmap(data)
			return nil, err
		}
		mf.unmap = unix.Munmap
		return mf, nil
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse validates an in-memory container. The returned File aliases data.
func Parse(data []byte) (*File, error) {
	hdr, ok := decode[Header](data)
	if !ok {
		return nil, ErrCorruptFile
	}
	if string(hdr.Magic[:]) != MagicMCF {
		return nil, ErrInvalidMagic
	}
	if hdr.Major != CurrentMajor {
		return nil, fmt.Errorf("%w: %d.%d", ErrUnsupportedMajor, hdr.Major, hdr.Minor)
	}
	size := uint64(len(data))
	if hdr.HeaderSize < headerSize || uint64(hdr.HeaderSize) > size || hdr.FileSize != size || hdr.SectionCount == 0 {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptFile)
	}

	dirEnd, ok := hdr.dirEnd()
	if !ok || hdr.DirOffset < uint64(hdr.HeaderSize) || dirEnd > size {
		return nil, fmt.Errorf("%w: section directory out of bounds", ErrCorruptFile)
	}

	sections := make([]DirEntry, hdr.SectionCount)
	for i := range sections {
		off := hdr.DirOffset + uint64(i)*dirEntrySize
		e, ok := decode[DirEntry](data[off : off+dirEntrySize])
		if !ok {
			return nil, ErrCorruptFile
		}
		if err := checkEntry(e, hdr, dirEnd, size); err != nil {
			return nil, fmt.Errorf("%w: section %d (%s): %v", ErrCorruptFile, i, e.SectionType(), err)
		}
		sections[i] = e
	}

	return &File{Data: data, Header: hdr, Sections: sections}, nil
}

func checkEntry(e DirEntry, hdr Header, dirEnd, size uint64) error {
	end := e.End()
	switch {
	case end < e.Offset || end > size:
		return errors.New("out of bounds")
	case e.Offset < uint64(hdr.HeaderSize):
		return errors.New("overlaps header")
	case rangesOverlap(e.Offset, end, hdr.DirOffset, dirEnd):
		return errors.New("overlaps section directory")
	case e.Offset%alignment != 0:
		return errors.New("misaligned")
	}
	return nil
}

// Close releases the mapping. Views returned by SectionData and
// TensorData are invalid afterwards.
func (f *File) Close() error {
	if f == nil || f.Data == nil {
		return nil
	}
	var err error
	if f.unmap != nil {
		err = f.unmap(f.Data)
	}
	*f = File{}
	return err
}

// Section returns the first directory entry of type t, or nil.
func (f *File) Section(t SectionType) *DirEntry {
	for i := range f.Sections {
		if f.Sections[i].SectionType() == t {
			return &f.Sections[i]
		}
	}
	return nil
}

// SectionData returns a zero-copy slice covering the section payload.
func (f *File) SectionData(e *DirEntry) []byte {
	if f == nil || e == nil || f.Data == nil {
		return nil
	}
	if end := e.End(); end >= e.Offset && end <= uint64(len(f.Data)) {
		return f.Data[e.Offset:end]
	}
	return nil
}

// RequireSection is SectionData for sections a prefab cannot do without.
func (f *File) RequireSection(t SectionType) ([]byte, uint32, error) {
	e := f.Section(t)
	if e == nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrMissingSection, t)
	}
	return f.SectionData(e), e.Version, nil
}

// TensorIndex parses the tensor index section.
func (f *File) TensorIndex() (*TensorIndex, error) {
	data, _, err := f.RequireSection(SectionTensorIndex)
	if err != nil {
		return nil, err
	}
	return ParseTensorIndexSection(data)
}

// ReadTensorF32 copies an F32 tensor out of the file.
func (f *File) ReadTensorF32(ti *TensorIndex, name string) ([]float32, []uint64, error) {
	i, ok := ti.Find(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	e, err := ti.Entry(i)
	if err != nil {
		return nil, nil, err
	}
	if e.DType != DTypeF32 {
		return nil, nil, fmt.Errorf("tensor %s: unsupported dtype %d", name, e.DType)
	}
	shape, err := ti.Shape(i)
	if err != nil {
		return nil, nil, err
	}
	raw, err := ti.TensorData(f, i)
	if err != nil {
		return nil, nil, err
	}
	if len(raw)%4 != 0 {
		return nil, nil, fmt.Errorf("%w: tensor %s size %d", ErrCorruptFile, name, len(raw))
	}
	out := make([]float32, len(raw)/4)
	for j := range out {
		out[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[j*4:]))
	}
	return out, shape, nil
}
