package msf

import (
	"io"
	"os"
)

// BackingFile is the random-access surface a container needs from its
// underlying storage: absolute-offset reads and writes, a length, and
// the ability to grow. *os.File is adapted to it by osBackingFile;
// tests use the in-memory memBackingFile.
type BackingFile interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the current length of the backing storage in
	// bytes.
	Size() (int64, error)

	// Truncate grows or shrinks the backing storage to exactly size
	// bytes. Growing must zero-fill the new region.
	Truncate(size int64) error

	// Sync flushes any buffering to stable storage. Called after the
	// page-0 commit write when Options.SyncWrites is set.
	Sync() error

	Close() error
}

// osBackingFile adapts *os.File to BackingFile; os.File has no Size
// method of its own (only Stat().Size()).
type osBackingFile struct {
	*os.File
}

// newOSBackingFile wraps f as a BackingFile.
func newOSBackingFile(f *os.File) BackingFile {
	return osBackingFile{f}
}

// NewOSBackingFile wraps an already-open *os.File as a BackingFile,
// for callers (such as a CLI) that need to sniff or otherwise handle
// a file before deciding which opener (Open or OpenMsfz) applies to
// it.
func NewOSBackingFile(f *os.File) BackingFile {
	return newOSBackingFile(f)
}

func (o osBackingFile) Size() (int64, error) {
	fi, err := o.File.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// memBackingFile is an in-memory BackingFile, used by tests that
// exercise the container without touching a filesystem.
type memBackingFile struct {
	buf []byte
}

func newMemBackingFile() *memBackingFile {
	return &memBackingFile{}
}

func (m *memBackingFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrMsf.Errorf("ReadAt: negative offset")
	}
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memBackingFile) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrMsf.Errorf("WriteAt: negative offset")
	}
	end := off + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:end], p)
	return len(p), nil
}

func (m *memBackingFile) Size() (int64, error) { return int64(len(m.buf)), nil }

func (m *memBackingFile) Truncate(size int64) error {
	if size <= int64(len(m.buf)) {
		m.buf = m.buf[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, m.buf)
	m.buf = grown
	return nil
}

func (m *memBackingFile) Sync() error { return nil }

func (m *memBackingFile) Close() error { return nil }
