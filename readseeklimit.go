package msf

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrPageRegionBounds is the base error for PageRegionReader bounds
// violations.
var ErrPageRegionBounds = errors.New("page region reader:")

// ReadSeekCloser defines a combined io.ReadSeeker and io.Closer
// interface.
type ReadSeekCloser interface {
	io.ReadSeeker
	io.Closer
}

// PageRegionReader bounds reads and seeks to a fixed byte span of an
// already-open file, starting at a given absolute offset. It is how
// cmd/msfcli's `extract --raw` reads the bytes of an MSFZ stream
// stored as one uncompressed fragment directly off disk, without going
// through the MSFZ fragment reader, since the caller already knows the
// exact file region the fragment occupies.
type PageRegionReader struct {
	f     *os.File
	base  int64
	pos   int64
	limit int64
}

// NewLimitedReadSeekCloser returns a ReadSeekCloser bounded to the
// span [offset, offset+size) of f. The returned reader's own offset 0
// corresponds to file offset `offset`.
func NewLimitedReadSeekCloser(f *os.File, offset, size int64) (ReadSeekCloser, error) {
	if _, err := f.Seek(offset, os.SEEK_SET); err != nil {
		return nil, err
	}
	return &PageRegionReader{f: f, base: offset, pos: 0, limit: size}, nil
}

// Read implements io.Reader, refusing to read past the bounded span.
func (r *PageRegionReader) Read(b []byte) (int, error) {
	remaining := r.limit - r.pos
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(b)) > remaining {
		n, err := r.f.Read(b[:remaining])
		r.pos += int64(n)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	n, err := r.f.Read(b)
	r.pos += int64(n)
	return n, err
}

// Seek implements io.Seeker over the bounded span; offsets and
// results are relative to the span, not the underlying file.
func (r *PageRegionReader) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case os.SEEK_SET:
		if offset < 0 || offset > r.limit {
			return 0, fmt.Errorf("%w: seek out of bounds", ErrPageRegionBounds)
		}
		r.pos = offset
	case os.SEEK_CUR:
		if r.pos+offset < 0 || r.pos+offset > r.limit {
			return 0, fmt.Errorf("%w: seek out of bounds", ErrPageRegionBounds)
		}
		r.pos += offset
	case os.SEEK_END:
		if r.limit+offset < 0 || r.limit+offset > r.limit {
			return 0, fmt.Errorf("%w: seek out of bounds", ErrPageRegionBounds)
		}
		r.pos = r.limit + offset
	default:
		return 0, fmt.Errorf("%w: invalid whence", ErrPageRegionBounds)
	}
	if _, err := r.f.Seek(r.base+r.pos, os.SEEK_SET); err != nil {
		return 0, err
	}
	return r.pos, nil
}

// Close closes the underlying file.
func (r *PageRegionReader) Close() error {
	return r.f.Close()
}
