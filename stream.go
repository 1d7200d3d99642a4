package msf

import (
	"io"
	"math"
)

// streamState is a stream's in-memory directory entry: its logical
// size and the page numbers that back it, in stream order. A size of
// NilStreamSize marks a nil stream, distinct from a genuinely empty
// one.
type streamState struct {
	size  uint32
	pages []uint32
}

func (s *streamState) isNil() bool { return s.size == NilStreamSize }

// logicalSize returns the stream's byte length, or 0 for a nil
// stream.
func (s *streamState) logicalSize() uint32 {
	if s.isNil() {
		return 0
	}
	return s.size
}

// StreamReader provides sequential and random read access over a
// stream's non-contiguous page list. It satisfies io.Reader,
// io.ReaderAt, and io.Seeker. Grounded on the original's page-mapper
// driven stream reader (SPEC_FULL.md §4.3) and shaped after the
// teacher's bounded ReadSeekCloser.
type StreamReader struct {
	file     BackingFile
	pageSize uint32
	st       *streamState
	pos      int64
}

func newStreamReader(file BackingFile, pageSize uint32, st *streamState) *StreamReader {
	return &StreamReader{file: file, pageSize: pageSize, st: st}
}

// Size returns the stream's current logical length.
func (r *StreamReader) Size() uint32 { return r.st.logicalSize() }

func (r *StreamReader) Read(p []byte) (int, error) {
	n, err := r.ReadAt(p, r.pos)
	r.pos += int64(n)
	return n, err
}

func (r *StreamReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrMsf.Errorf("ReadAt: negative offset")
	}
	size := uint64(r.st.logicalSize())
	if uint64(off) >= size {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	avail := size - uint64(off)
	want := uint64(len(p))
	if want > avail {
		want = avail
	}

	total := uint64(0)
	pos := uint64(off)
	for total < want {
		fileOff, n, ok := mapStreamRange(r.st.pages, r.pageSize, pos, uint32(want-total))
		if !ok {
			break
		}
		m, err := r.file.ReadAt(p[total:total+uint64(n)], int64(fileOff))
		total += uint64(m)
		pos += uint64(m)
		if err != nil && err != io.EOF {
			return int(total), err
		}
		if uint32(m) < n {
			break
		}
	}
	if total < uint64(len(p)) {
		return int(total), io.EOF
	}
	return int(total), nil
}

func (r *StreamReader) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = r.pos
	case io.SeekEnd:
		base = int64(r.st.logicalSize())
	default:
		return 0, ErrMsf.Errorf("Seek: invalid whence %d", whence)
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, ErrMsf.Errorf("Seek: negative position")
	}
	r.pos = newPos
	return newPos, nil
}

// StreamWriter implements the write side of a stream: sequential
// io.Writer semantics plus positional WriteAt, backed by the
// allocator and its copy-on-write discipline. See SPEC_FULL.md §4.4.
type StreamWriter struct {
	file     BackingFile
	pageSize uint32
	alloc    *pageAllocator
	st       *streamState
	pos      uint64
}

func newStreamWriter(file BackingFile, pageSize uint32, alloc *pageAllocator, st *streamState) *StreamWriter {
	return &StreamWriter{file: file, pageSize: pageSize, alloc: alloc, st: st}
}

func (w *StreamWriter) Write(p []byte) (int, error) {
	if err := w.writeCore(p, w.pos); err != nil {
		return 0, err
	}
	w.pos += uint64(len(p))
	return len(p), nil
}

func (w *StreamWriter) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrMsf.Errorf("WriteAt: negative offset")
	}
	if err := w.writeCore(p, uint64(off)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *StreamWriter) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(w.pos)
	case io.SeekEnd:
		base = int64(w.st.logicalSize())
	default:
		return 0, ErrMsf.Errorf("Seek: invalid whence %d", whence)
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, ErrMsf.Errorf("Seek: negative position")
	}
	w.pos = uint64(newPos)
	return newPos, nil
}

// writeCore implements the five write regimes of SPEC_FULL.md §4.4:
// nil promotion, zero-extension, overwrite, and append (the unaligned
// and aligned append cases collapse into the single growAppend
// helper, since both are "push bytes onto the end of the stream").
func (w *StreamWriter) writeCore(buf []byte, pos uint64) error {
	end := pos + uint64(len(buf))
	if end > math.MaxUint32 {
		return ErrInputTooLarge.Errorf("write range [%d, %d) exceeds maximum stream size", pos, end)
	}
	if w.st.isNil() {
		w.st.size = 0
	}
	if len(buf) == 0 {
		return nil
	}

	size := uint64(w.st.size)

	if pos > size {
		if err := w.growAppend(make([]byte, pos-size)); err != nil {
			return err
		}
		size = uint64(w.st.size)
	}

	if pos < size {
		overwriteEnd := end
		if overwriteEnd > size {
			overwriteEnd = size
		}
		n := overwriteEnd - pos
		if err := w.overwrite(pos, buf[:n]); err != nil {
			return err
		}
		buf = buf[n:]
		pos = overwriteEnd
	}

	if len(buf) > 0 {
		if err := w.growAppend(buf); err != nil {
			return err
		}
	}
	return nil
}

// growAppend pushes data onto the end of the stream, which must
// currently be at w.st.size. It handles the unaligned tail of the
// existing last page (cow, splice, write), then complete pages in
// allocator-run-sized batches, then a final partial page.
func (w *StreamWriter) growAppend(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	ps := uint64(w.pageSize)
	pos := uint64(w.st.size)

	if rem := pos % ps; rem != 0 && len(w.st.pages) > 0 {
		lastIdx := len(w.st.pages) - 1
		old, err := w.readPage(w.st.pages[lastIdx])
		if err != nil {
			return err
		}
		n := ps - rem
		if uint64(len(data)) < n {
			n = uint64(len(data))
		}
		newPageNum, err := w.cowPageAt(lastIdx)
		if err != nil {
			return err
		}
		pbuf := make([]byte, ps)
		copy(pbuf, old)
		copy(pbuf[rem:], data[:n])
		if err := w.writePage(newPageNum, pbuf); err != nil {
			return err
		}
		data = data[n:]
		pos += n
		w.st.size = uint32(pos)
	}

	for uint64(len(data)) >= ps {
		wanted := uint32(uint64(len(data)) / ps)
		first, run, err := w.alloc.AllocPages(wanted)
		if err != nil {
			return err
		}
		for i := uint32(0); i < run; i++ {
			w.st.pages = append(w.st.pages, first+i)
		}
		n := uint64(run) * ps
		if err := w.writePages(first, run, data[:n]); err != nil {
			return err
		}
		data = data[n:]
		pos += n
		w.st.size = uint32(pos)
	}

	if len(data) > 0 {
		p, err := w.alloc.AllocPage()
		if err != nil {
			return err
		}
		w.st.pages = append(w.st.pages, p)
		pbuf := make([]byte, ps)
		copy(pbuf, data)
		if err := w.writePage(p, pbuf); err != nil {
			return err
		}
		pos += uint64(len(data))
		w.st.size = uint32(pos)
	}
	return nil
}

// overwrite rewrites the already-owned byte range [pos, pos+len(buf))
// in place, cow'ing each touched page. Full pages in the middle of
// the range are batched and written as the longest run of
// consecutive new physical page numbers, per SPEC_FULL.md §4.4's
// run-grouping requirement.
func (w *StreamWriter) overwrite(pos uint64, buf []byte) error {
	ps := uint64(w.pageSize)
	for len(buf) > 0 {
		pageIndex := int(pos / ps)
		offInPage := pos % ps

		if offInPage == 0 && uint64(len(buf)) >= ps {
			var newPages []uint32
			var batch []byte
			for len(buf) > 0 && pos%ps == 0 && uint64(len(buf)) >= ps {
				newPageNum, err := w.cowPageAt(pageIndex)
				if err != nil {
					return err
				}
				newPages = append(newPages, newPageNum)
				batch = append(batch, buf[:ps]...)
				buf = buf[ps:]
				pos += ps
				pageIndex++
			}
			if err := w.writeRunGrouped(newPages, batch, ps); err != nil {
				return err
			}
			continue
		}

		n := ps - offInPage
		if uint64(len(buf)) < n {
			n = uint64(len(buf))
		}
		old, err := w.readPage(w.st.pages[pageIndex])
		if err != nil {
			return err
		}
		newPageNum, err := w.cowPageAt(pageIndex)
		if err != nil {
			return err
		}
		pbuf := make([]byte, ps)
		copy(pbuf, old)
		copy(pbuf[offInPage:], buf[:n])
		if err := w.writePage(newPageNum, pbuf); err != nil {
			return err
		}
		buf = buf[n:]
		pos += n
	}
	return nil
}

// cowPageAt ensures the page at st.pages[idx] is fresh, replacing it
// in the page list if a copy-on-write allocation was needed.
func (w *StreamWriter) cowPageAt(idx int) (uint32, error) {
	p := w.st.pages[idx]
	if err := w.alloc.MakePageFresh(&p); err != nil {
		return 0, err
	}
	w.st.pages[idx] = p
	return p, nil
}

func (w *StreamWriter) readPage(pageNum uint32) ([]byte, error) {
	buf := make([]byte, w.pageSize)
	_, err := w.file.ReadAt(buf, int64(pageNum)*int64(w.pageSize))
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

func (w *StreamWriter) writePage(pageNum uint32, data []byte) error {
	_, err := w.file.WriteAt(data, int64(pageNum)*int64(w.pageSize))
	return err
}

func (w *StreamWriter) writePages(first, run uint32, data []byte) error {
	_, err := w.file.WriteAt(data, int64(first)*int64(w.pageSize))
	return err
}

// writeRunGrouped writes data (a concatenation of len(pages) whole
// pages) to file, issuing one WriteAt per maximal run of consecutive
// page numbers in pages.
func (w *StreamWriter) writeRunGrouped(pages []uint32, data []byte, ps uint64) error {
	i := 0
	for i < len(pages) {
		j := i + 1
		for j < len(pages) && pages[j] == pages[j-1]+1 {
			j++
		}
		runLen := uint64(j-i) * ps
		off := uint64(pages[i]) * ps
		start := uint64(i) * ps
		if _, err := w.file.WriteAt(data[start:start+runLen], int64(off)); err != nil {
			return err
		}
		i = j
	}
	return nil
}
