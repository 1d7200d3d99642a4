package msf

import "io"

// discriminationWindow is how many leading bytes of the file are read
// to identify its variant; large enough to cover every known
// signature plus the Portable PDB magic at offset 16.
const discriminationWindow = 64

// Open opens an existing MSF container from file. Only the big-MSF
// encoding supports read-write access; the obsolete small-MSF
// encoding is accepted read-only. Portable PDB files are rejected
// with ErrUnsupportedVariant.
func Open(file BackingFile, options *Options) (*Container, error) {
	if options == nil {
		options = NewOptions()
	}
	log := options.logger()

	size, err := file.Size()
	if err != nil {
		return nil, ErrMsf.Errorf("stat error: %w", err)
	}
	window := int64(discriminationWindow)
	if size < window {
		window = size
	}
	head := make([]byte, window)
	if window > 0 {
		if _, err := file.ReadAt(head, 0); err != nil && err != io.EOF {
			return nil, ErrMsf.Errorf("read error: %w", err)
		}
	}

	switch discriminateVariant(head) {
	case variantPortablePdb:
		return nil, ErrUnsupportedVariant.Errorf("file is a Portable PDB, not an MSF container")
	case variantSmallMsf:
		if !options.ReadOnly {
			return nil, ErrUnsupportedVariant.Errorf("small MSF (pre-big) encoding only supports read-only access")
		}
		return openSmallMsf(file, options, log)
	case variantBigMsf:
		return openBigMsf(file, options, log)
	default:
		return nil, ErrNotAnMsf.Errorf("unrecognized file signature")
	}
}

func openBigMsf(file BackingFile, options *Options, log Logger) (*Container, error) {
	hdr := make([]byte, bigHeaderFixedSize)
	if _, err := file.ReadAt(hdr, 0); err != nil {
		return nil, ErrMalformedHeader.Errorf("header read error: %w", err)
	}
	h, err := decodeBigHeader(hdr)
	if err != nil {
		return nil, err
	}
	if !isPageSizeValid(h.PageSize) {
		return nil, ErrMalformedHeader.Errorf("invalid page size %d", h.PageSize)
	}
	if h.ActiveFpm != 1 && h.ActiveFpm != 2 {
		return nil, ErrMalformedHeader.Errorf("invalid active FPM number %d", h.ActiveFpm)
	}
	if h.NumPages == 0 {
		return nil, ErrMalformedHeader.Errorf("page count is zero")
	}
	pageSize := h.PageSize

	page0 := make([]byte, pageSize)
	if _, err := file.ReadAt(page0, 0); err != nil && err != io.EOF {
		return nil, ErrMalformedHeader.Errorf("page 0 read error: %w", err)
	}

	alloc := newPageAllocator(pageSize, h.NumPages)

	numDirPages := pageCountForSize(uint64(h.DirSizeBytes), pageSize)
	numMapEntries := pageCountForSize(uint64(numDirPages)*4, pageSize)
	mapBytesOff := uint64(bigHeaderFixedSize)
	if mapBytesOff+uint64(numMapEntries)*4 > uint64(len(page0)) {
		return nil, ErrMalformedHeader.Errorf("directory page map does not fit in page 0")
	}
	mapPages := make([]uint32, numMapEntries)
	for i := uint32(0); i < numMapEntries; i++ {
		mapPages[i] = getU32(page0[mapBytesOff+uint64(i)*4:])
	}
	for _, p := range mapPages {
		if p >= h.NumPages {
			return nil, ErrMalformedDirectory.Errorf("map page %d out of range", p)
		}
		if err := alloc.InitMarkStreamDirPageBusy(p); err != nil {
			return nil, err
		}
	}

	dirPagesBytes, err := readPagedBlob(file, pageSize, mapPages, numDirPages*4)
	if err != nil {
		return nil, ErrMalformedDirectory.Errorf("directory page map read error: %w", err)
	}
	dirPages := make([]uint32, numDirPages)
	for i := uint32(0); i < numDirPages; i++ {
		dirPages[i] = getU32(dirPagesBytes[4*i:])
	}
	for _, p := range dirPages {
		if p >= h.NumPages {
			return nil, ErrMalformedDirectory.Errorf("directory page %d out of range", p)
		}
		if err := alloc.InitMarkStreamDirPageBusy(p); err != nil {
			return nil, err
		}
	}

	dirBytes, err := readPagedBlob(file, pageSize, dirPages, h.DirSizeBytes)
	if err != nil {
		return nil, ErrMalformedDirectory.Errorf("stream directory read error: %w", err)
	}
	streams, err := decodeStreamDir(dirBytes, pageSize)
	if err != nil {
		return nil, err
	}

	for i := range streams {
		if i == 0 || streams[i].size == NilStreamSize {
			continue
		}
		for _, p := range streams[i].pages {
			if p >= h.NumPages {
				return nil, ErrMalformedDirectory.Errorf("stream %d references out-of-range page %d", i, p)
			}
			if err := alloc.markBusy(p); err != nil {
				return nil, err
			}
		}
	}

	if options.VerifyFpmOnOpen || !options.ReadOnly {
		onDisk, err := readFpmSnapshot(file, pageSize, h.NumPages, h.ActiveFpm)
		if err != nil {
			return nil, ErrMsf.Errorf("FPM read error: %w", err)
		}
		if !fpmBitsEqual(&alloc.fpm, onDisk) {
			if options.ReadOnly {
				log.Warnf("on-disk FPM does not match directory-derived FPM; tolerated in read-only mode")
			} else {
				return nil, ErrFpmInconsistent
			}
		}
	}

	c := &Container{
		options:   options,
		file:      file,
		pageSize:  pageSize,
		readOnly:  options.ReadOnly,
		activeFpm: h.ActiveFpm,
		alloc:     alloc,
		bufPool:   newPageBufferPool(int64(pageSize) * 4),
		streams:   streams,
	}
	log.Infof("opened container: %d streams, %d pages, page size %d", len(streams), h.NumPages, pageSize)
	return c, nil
}

// openSmallMsf opens the obsolete pre-big MSF encoding, read-only.
// The stream directory's page map is a single inline array of 16-bit
// page numbers in page 0 (no two-level indirection), and the
// directory itself uses 32-bit stream sizes but 16-bit page numbers.
// See SPEC_FULL.md §4.5 step 9 and §9.
func openSmallMsf(file BackingFile, options *Options, log Logger) (*Container, error) {
	page0 := make([]byte, smallHeaderFixedSize)
	if _, err := file.ReadAt(page0, 0); err != nil {
		return nil, ErrMalformedHeader.Errorf("header read error: %w", err)
	}
	h, err := decodeSmallHeader(page0)
	if err != nil {
		return nil, err
	}
	if !isPageSizeValid(h.PageSize) {
		return nil, ErrMalformedHeader.Errorf("invalid page size %d", h.PageSize)
	}
	if h.ActiveFpm != 1 && h.ActiveFpm != 2 {
		return nil, ErrMalformedHeader.Errorf("invalid active FPM number %d", h.ActiveFpm)
	}
	if h.NumPages == 0 {
		return nil, ErrMalformedHeader.Errorf("page count is zero")
	}
	pageSize := h.PageSize
	numPages := uint32(h.NumPages)

	numDirPages := pageCountForSize(uint64(h.DirSizeBytes), pageSize)
	pagePointersBytes := uint64(numDirPages) * 2
	if pagePointersBytes+uint64(smallHeaderFixedSize) > uint64(pageSize) {
		return nil, ErrMalformedHeader.Errorf("small MSF stream directory page pointers exceed page 0")
	}
	ptrBuf := make([]byte, pagePointersBytes)
	if pagePointersBytes > 0 {
		if _, err := file.ReadAt(ptrBuf, int64(smallHeaderFixedSize)); err != nil {
			return nil, ErrMalformedHeader.Errorf("small MSF page pointer read error: %w", err)
		}
	}
	dirPages := make([]uint32, numDirPages)
	for i := uint32(0); i < numDirPages; i++ {
		dirPages[i] = uint32(getU16(ptrBuf[2*i:]))
	}

	alloc := newPageAllocator(pageSize, numPages)
	dirBytes := make([]byte, h.DirSizeBytes)
	pos := uint32(0)
	for _, p := range dirPages {
		if p >= numPages {
			return nil, ErrMalformedDirectory.Errorf("small MSF directory page %d out of range", p)
		}
		if err := alloc.InitMarkStreamDirPageBusy(p); err != nil {
			return nil, err
		}
		n := pageSize
		if h.DirSizeBytes-pos < n {
			n = h.DirSizeBytes - pos
		}
		if _, err := file.ReadAt(dirBytes[pos:pos+n], int64(p)*int64(pageSize)); err != nil {
			return nil, err
		}
		pos += n
	}

	streams, err := decodeSmallStreamDir(dirBytes, pageSize)
	if err != nil {
		return nil, err
	}
	for i := range streams {
		if i == 0 || streams[i].size == NilStreamSize {
			continue
		}
		for _, p := range streams[i].pages {
			if p >= numPages {
				return nil, ErrMalformedDirectory.Errorf("stream %d references out-of-range page %d", i, p)
			}
			if err := alloc.markBusy(p); err != nil {
				return nil, err
			}
		}
	}

	if options.VerifyFpmOnOpen {
		onDisk, err := readFpmSnapshot(file, pageSize, numPages, uint32(h.ActiveFpm))
		if err != nil {
			return nil, ErrMsf.Errorf("FPM read error: %w", err)
		}
		if !fpmBitsEqual(&alloc.fpm, onDisk) {
			log.Warnf("on-disk FPM does not match directory-derived FPM; tolerated for small MSF (read-only)")
		}
	}

	c := &Container{
		options:   options,
		file:      file,
		pageSize:  pageSize,
		readOnly:  true,
		activeFpm: uint32(h.ActiveFpm),
		alloc:     alloc,
		bufPool:   newPageBufferPool(int64(pageSize) * 4),
		streams:   streams,
	}
	log.Infof("opened small MSF container (read-only): %d streams, %d pages, page size %d", len(streams), numPages, pageSize)
	return c, nil
}

// decodeSmallStreamDir parses the small-MSF stream directory layout:
// u16 numStreams, u16 ignored, then num_streams×(u32 size, u32
// ignored), then concatenated u16 page lists in stream order. Stream
// 0 is always returned with size 0 and no pages.
func decodeSmallStreamDir(buf []byte, pageSize uint32) ([]streamState, error) {
	if len(buf) < 4 {
		return nil, ErrMalformedDirectory.Errorf("small MSF stream directory truncated: no stream count")
	}
	numStreams := getU16(buf)
	off := 4
	streams := make([]streamState, numStreams)
	for i := uint16(0); i < numStreams; i++ {
		if off+8 > len(buf) {
			return nil, ErrMalformedDirectory.Errorf("small MSF stream directory truncated: entry table")
		}
		streams[i].size = getU32(buf[off:])
		off += 8
	}
	for i := uint16(0); i < numStreams; i++ {
		if i == 0 || streams[i].size == NilStreamSize {
			continue
		}
		n := pageCountForSize(uint64(streams[i].size), pageSize)
		if uint64(off)+uint64(n)*2 > uint64(len(buf)) {
			return nil, ErrMalformedDirectory.Errorf("small MSF stream directory truncated: page list for stream %d", i)
		}
		pages := make([]uint32, n)
		for j := uint32(0); j < n; j++ {
			pages[j] = uint32(getU16(buf[off:]))
			off += 2
		}
		streams[i].pages = pages
	}
	if len(streams) > 0 {
		streams[0] = streamState{size: 0}
	}
	return streams, nil
}
