package msf

// encodeStreamDir serializes streams (index 0 is always written as
// size 0, no pages, regardless of its contents) into the directory
// byte layout of SPEC_FULL.md §6.2:
//
//	u32 numStreams
//	u32 sizes[numStreams]
//	u32 pages_of_stream_1[...]
//	u32 pages_of_stream_2[...]
//	...
func encodeStreamDir(streams []streamState) []byte {
	total := 4 + 4*len(streams)
	for i, s := range streams {
		if i == 0 {
			continue
		}
		if s.size != NilStreamSize {
			total += 4 * len(s.pages)
		}
	}
	buf := make([]byte, total)
	off := 0
	putU32(buf[off:], uint32(len(streams)))
	off += 4
	for i, s := range streams {
		if i == 0 {
			putU32(buf[off:], 0)
		} else {
			putU32(buf[off:], s.size)
		}
		off += 4
	}
	for i, s := range streams {
		if i == 0 || s.size == NilStreamSize {
			continue
		}
		for _, p := range s.pages {
			putU32(buf[off:], p)
			off += 4
		}
	}
	return buf
}

// decodeStreamDir parses the byte layout encodeStreamDir produces.
// Stream 0 is always returned with size 0 and no pages.
func decodeStreamDir(buf []byte, pageSize uint32) ([]streamState, error) {
	if len(buf) < 4 {
		return nil, ErrMalformedDirectory.Errorf("stream directory truncated: no stream count")
	}
	numStreams := getU32(buf)
	off := 4
	if uint64(off)+uint64(numStreams)*4 > uint64(len(buf)) {
		return nil, ErrMalformedDirectory.Errorf("stream directory truncated: sizes array")
	}
	streams := make([]streamState, numStreams)
	for i := uint32(0); i < numStreams; i++ {
		streams[i].size = getU32(buf[off:])
		off += 4
	}
	for i := uint32(0); i < numStreams; i++ {
		if i == 0 || streams[i].size == NilStreamSize {
			continue
		}
		n := pageCountForSize(uint64(streams[i].size), pageSize)
		if uint64(off)+uint64(n)*4 > uint64(len(buf)) {
			return nil, ErrMalformedDirectory.Errorf("stream directory truncated: page list for stream %d", i)
		}
		pages := make([]uint32, n)
		for j := uint32(0); j < n; j++ {
			pages[j] = getU32(buf[off:])
			off += 4
		}
		streams[i].pages = pages
	}
	if len(streams) > 0 {
		streams[0] = streamState{size: 0}
	}
	return streams, nil
}

// streamDirWriteResult is returned by writeStreamDir for use by the
// commit engine when assembling the new page 0.
type streamDirWriteResult struct {
	dirSizeBytes uint32
	dirPages     []uint32
	mapPages     []uint32
}

// writeStreamDir serializes streams, writes the bytes through alloc
// as a sequence of whole pages (the "directory pages"), then writes
// the directory-pages array itself through further allocated pages
// (the "map pages"). See SPEC_FULL.md §4.6.
func writeStreamDir(file BackingFile, alloc *pageAllocator, pageSize uint32, streams []streamState, pool *pageBufferPool) (*streamDirWriteResult, error) {
	dirBytes := encodeStreamDir(streams)
	dirPages, err := writePagedBlob(file, alloc, pageSize, dirBytes, pool)
	if err != nil {
		return nil, err
	}

	mapBytes := make([]byte, 4*len(dirPages))
	for i, p := range dirPages {
		putU32(mapBytes[4*i:], p)
	}
	mapPages, err := writePagedBlob(file, alloc, pageSize, mapBytes, pool)
	if err != nil {
		return nil, err
	}

	return &streamDirWriteResult{
		dirSizeBytes: uint32(len(dirBytes)),
		dirPages:     dirPages,
		mapPages:     mapPages,
	}, nil
}

// writePagedBlob allocates whole pages to hold data (zero-padding the
// final page) and writes them, returning the page numbers in order.
func writePagedBlob(file BackingFile, alloc *pageAllocator, pageSize uint32, data []byte, pool *pageBufferPool) ([]uint32, error) {
	n := pageCountForSize(uint64(len(data)), pageSize)
	pages := make([]uint32, 0, n)
	pos := 0
	for uint32(len(pages)) < n {
		wanted := n - uint32(len(pages))
		first, run, err := alloc.AllocPages(wanted)
		if err != nil {
			return nil, err
		}
		bufLen := int(uint64(run) * uint64(pageSize))
		buf := pool.acquire(bufLen)
		copy(buf, data[pos:])
		_, writeErr := file.WriteAt(buf, int64(first)*int64(pageSize))
		pool.release(buf)
		if writeErr != nil {
			return nil, writeErr
		}
		for i := uint32(0); i < run; i++ {
			pages = append(pages, first+i)
		}
		pos += bufLen
	}
	return pages, nil
}

// readPagedBlob reads a blob of exactly size bytes stored across the
// given page list, one contiguous run at a time.
func readPagedBlob(file BackingFile, pageSize uint32, pages []uint32, size uint32) ([]byte, error) {
	buf := make([]byte, size)
	pos := uint64(0)
	for pos < uint64(size) {
		fileOff, n, ok := mapStreamRange(pages, pageSize, pos, size-uint32(pos))
		if !ok {
			return nil, ErrMalformedDirectory.Errorf("paged blob page list too short for declared size")
		}
		if _, err := file.ReadAt(buf[pos:uint64(pos)+uint64(n)], int64(fileOff)); err != nil {
			return nil, err
		}
		pos += uint64(n)
	}
	return buf, nil
}
