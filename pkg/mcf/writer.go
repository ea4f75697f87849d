package mcf

import (
	"bufio"
	"cmp"
	"errors"
	"io"
	"os"
	"slices"
	"sync"
)

var (
	errWriterClosed = errors.New("mcf: writer already finalised")
	errSectionOpen  = errors.New("mcf: section write in progress")
	errDuplicate    = errors.New("mcf: duplicate section type")
	errSectionEnded = errors.New("mcf: section writer ended")
	errSectionIdle  = errors.New("mcf: section writer not active")
	zeroPad         = make([]byte, 4096)
)

// Writer builds an MCF file front to back through a buffer. The header is
// reserved up front and patched by Finalise.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	bw     *bufio.Writer
	pos    int64
	dir    []DirEntry
	seen   map[SectionType]bool
	open   *SectionWriter
	closed bool
}

// SectionWriter streams one section payload into the file. It must be
// ended before another section is started.
type SectionWriter struct {
	w       *Writer
	typ     SectionType
	version uint32
	start   int64
	ended   bool
}

// NewWriter truncates f and reserves the header.
func NewWriter(f *os.File) (*Writer, error) {
	if f == nil {
		return nil, errors.New("mcf: nil file")
	}
	if err := f.Truncate(0); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	w := &Writer{
		f:    f,
		bw:   bufio.NewWriterSize(f, 1<<20),
		seen: make(map[SectionType]bool),
	}
	if err := w.pad(alignUp(headerSize, alignment)); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) write(p []byte) error {
	n, err := w.bw.Write(p)
	w.pos += int64(n)
	return err
}

func (w *Writer) pad(n int64) error {
	for n > 0 {
		k := min(n, int64(len(zeroPad)))
		if err := w.write(zeroPad[:k]); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

func (w *Writer) align(n int64) error {
	if n <= 1 {
		return nil
	}
	return w.pad(alignUp(w.pos, n) - w.pos)
}

// begin checks that a section of type typ may start and aligns to it.
func (w *Writer) begin(typ SectionType) error {
	switch {
	case w.closed:
		return errWriterClosed
	case w.open != nil:
		return errSectionOpen
	case w.seen[typ]:
		return errDuplicate
	}
	w.seen[typ] = true
	return w.align(alignment)
}

// WriteSection writes a whole section payload. Each type may be written once.
func (w *Writer) WriteSection(typ SectionType, version uint32, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.begin(typ); err != nil {
		return err
	}
	off := w.pos
	if err := w.write(data); err != nil {
		return err
	}
	w.dir = append(w.dir, DirEntry{
		Type:    uint32(typ),
		Version: version,
		Offset:  uint64(off),
		Size:    uint64(len(data)),
	})
	return nil
}

// BeginSection starts streaming a large section such as tensor data.
func (w *Writer) BeginSection(typ SectionType, version uint32) (*SectionWriter, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.begin(typ); err != nil {
		return nil, err
	}
	sw := &SectionWriter{w: w, typ: typ, version: version, start: w.pos}
	w.open = sw
	return sw, nil
}

func (sw *SectionWriter) active() error {
	if sw.ended {
		return errSectionEnded
	}
	if sw.w.open != sw {
		return errSectionIdle
	}
	return nil
}

// Offset returns the current absolute file offset. Tensor index entries
// record absolute offsets so readers can slice the mapping directly.
func (sw *SectionWriter) Offset() (uint64, error) {
	sw.w.mu.Lock()
	defer sw.w.mu.Unlock()

	if err := sw.active(); err != nil {
		return 0, err
	}
	return uint64(sw.w.pos), nil
}

// Align pads the section with zeros to an n-byte boundary.
func (sw *SectionWriter) Align(n int) error {
	sw.w.mu.Lock()
	defer sw.w.mu.Unlock()

	if err := sw.active(); err != nil {
		return err
	}
	return sw.w.align(int64(n))
}

func (sw *SectionWriter) Write(p []byte) (int, error) {
	sw.w.mu.Lock()
	defer sw.w.mu.Unlock()

	if err := sw.active(); err != nil {
		return 0, err
	}
	if err := sw.w.write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// End records the section in the directory.
func (sw *SectionWriter) End() error {
	sw.w.mu.Lock()
	defer sw.w.mu.Unlock()

	if err := sw.active(); err != nil {
		return err
	}
	sw.w.dir = append(sw.w.dir, DirEntry{
		Type:    uint32(sw.typ),
		Version: sw.version,
		Offset:  uint64(sw.start),
		Size:    uint64(sw.w.pos - sw.start),
	})
	sw.w.open = nil
	sw.ended = true
	return nil
}

// Finalise writes the sorted section directory, patches the header and
// syncs. The writer must not be used afterwards.
func (w *Writer) Finalise() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errWriterClosed
	}
	if w.open != nil {
		return errSectionOpen
	}
	w.closed = true

	slices.SortFunc(w.dir, func(a, b DirEntry) int { return cmp.Compare(a.Type, b.Type) })
	if err := w.align(alignment); err != nil {
		return err
	}
	dirOffset := w.pos
	buf := make([]byte, 0, len(w.dir)*dirEntrySize)
	for _, e := range w.dir {
		buf = encode(buf, e)
	}
	if err := w.write(buf); err != nil {
		return err
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}

	hdr := encode(nil, newHeader(len(w.dir), dirOffset, w.pos))
	if _, err := w.f.WriteAt(hdr, 0); err != nil {
		return err
	}
	return w.f.Sync()
}
