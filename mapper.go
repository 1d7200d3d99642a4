package msf

// mapStreamRange finds the longest contiguous file extent that backs
// the byte range [pos, pos+wanted) of a stream whose page list is
// pages. It returns the absolute file offset of that extent and how
// many of the wanted bytes it covers; the caller loops, advancing pos
// by transferLen, until wanted bytes have been transferred. Grounded
// on the original's page-run mapper (SPEC_FULL.md §4.2): stream pages
// need not be contiguous, but when a run of them happens to be
// consecutive page numbers, a single ReadAt/WriteAt covers all of
// them at once.
func mapStreamRange(pages []uint32, pageSize uint32, pos uint64, wanted uint32) (fileOffset uint64, transferLen uint32, ok bool) {
	if wanted == 0 {
		return 0, 0, false
	}
	pageIndex := pos / uint64(pageSize)
	if pageIndex >= uint64(len(pages)) {
		return 0, 0, false
	}
	pageOffset := uint32(pos % uint64(pageSize))

	fileOffset = uint64(pages[pageIndex])*uint64(pageSize) + uint64(pageOffset)
	run := pageSize - pageOffset

	i := pageIndex
	for run < wanted && i+1 < uint64(len(pages)) && pages[i+1] == pages[i]+1 {
		run += pageSize
		i++
	}
	if run > wanted {
		run = wanted
	}
	return fileOffset, run, true
}

// pageCountForSize returns ceil(size/pageSize), the number of pages
// needed to hold size bytes. A zero size still needs zero pages; a
// stream of size 0 legitimately owns no pages.
func pageCountForSize(size uint64, pageSize uint32) uint32 {
	if size == 0 {
		return 0
	}
	return uint32((size + uint64(pageSize) - 1) / uint64(pageSize))
}
