package msf

// pageAllocator owns the free-page-map state for one container
// transaction: which pages are FREE, BUSY, FREED (owned by the
// committed snapshot but released in the uncommitted one), or FRESH
// (safe to mutate in place without copy-on-write). See SPEC_FULL.md
// §3.2 and §4.1.
type pageAllocator struct {
	fpm   pagebits // bit set => FREE
	freed pagebits // bit set => released this transaction, not yet merged
	fresh pagebits // bit set => allocated or cow'd this transaction

	pageSize         uint32
	numPages         uint32
	nextFreePageHint uint32
}

// newPageAllocator builds an allocator over numPages pages, all FREE,
// then reserves page 0 and every FPM page that falls within that
// range as BUSY (not FREED). Used by the create path; the open path
// instead replays reservations from the decoded stream directory (see
// open.go) on top of an all-FREE allocator of the same shape.
func newPageAllocator(pageSize, numPages uint32) *pageAllocator {
	a := &pageAllocator{
		fpm:              newPagebits(numPages),
		freed:            newPagebits(numPages),
		fresh:            newPagebits(numPages),
		pageSize:         pageSize,
		numPages:         numPages,
		nextFreePageHint: 0,
	}
	for p := uint32(0); p < numPages; p++ {
		a.fpm.set(p, true)
	}
	a.reserveFixedPages()
	return a
}

// reserveFixedPages marks page 0 and every FPM page within the
// current numPages as BUSY (never FREED, never FRESH). Safe to call
// any time numPages grows.
func (a *pageAllocator) reserveFixedPages() {
	if a.numPages > 0 {
		a.fpm.set(0, false)
	}
	for p := uint32(1); p < a.numPages; p++ {
		if isFpmPage(a.pageSize, p) {
			a.fpm.set(p, false)
		}
	}
}

// isFpmPage reports whether p is one of the two FPM pages reserved in
// every interval (relative offset 1 or 2).
func isFpmPage(pageSize, p uint32) bool {
	rel := p % pageSize
	return rel == 1 || rel == 2
}

func (a *pageAllocator) growTo(n uint32) {
	if n <= a.numPages {
		return
	}
	a.fpm.grow(n)
	a.freed.grow(n)
	a.fresh.grow(n)
}

func (a *pageAllocator) claim(p uint32) {
	a.fpm.set(p, false)
	a.freed.set(p, false)
	a.fresh.set(p, true)
}

// AllocPages allocates 1..=wanted contiguous pages in a single run,
// returning the first page number and the run length actually
// granted. runLen may be less than wanted: a run taken from existing
// free pages stops at the first page that is not free (or at the end
// of the page map), and a run that extends the file stops at the next
// FPM-reserved page; the caller must request another run to continue.
// See SPEC_FULL.md §4.1.
func (a *pageAllocator) AllocPages(wanted uint32) (first, runLen uint32, err error) {
	if wanted < 1 {
		return 0, 0, ErrMsf.Errorf("AllocPages: wanted must be >= 1")
	}

	if p0, ok := a.fpm.firstSetFrom(a.nextFreePageHint); ok {
		run := uint32(0)
		p := p0
		for run < wanted && p < a.fpm.len() && a.fpm.get(p) {
			a.claim(p)
			run++
			p++
		}
		a.nextFreePageHint = p
		return p0, run, nil
	}

	first = a.numPages
	run := uint32(0)
	p := a.numPages
	for run < wanted {
		a.growTo(p + 1)
		if isFpmPage(a.pageSize, p) {
			a.fpm.set(p, false)
			if run > 0 {
				break
			}
			first = p + 1
			p++
			continue
		}
		a.claim(p)
		run++
		p++
	}
	a.numPages = a.fpm.len()
	a.nextFreePageHint = p
	return first, run, nil
}

// AllocPage allocates exactly one page.
func (a *pageAllocator) AllocPage() (uint32, error) {
	first, run, err := a.AllocPages(1)
	if err != nil {
		return 0, err
	}
	if run != 1 {
		return 0, ErrMsf.Errorf("AllocPage: allocator invariant violated, got run=%d", run)
	}
	return first, nil
}

// MakePageFresh ensures *page is safe to mutate in place: a no-op if
// it already is, otherwise it marks the old page FREED and replaces
// *page with a newly allocated FRESH page. It does not copy contents;
// callers that need the old bytes must read them first.
func (a *pageAllocator) MakePageFresh(page *uint32) error {
	if a.fresh.get(*page) {
		return nil
	}
	a.freed.set(*page, true)
	newPage, err := a.AllocPage()
	if err != nil {
		return err
	}
	*page = newPage
	return nil
}

// MergeFreedIntoFree folds every FREED page back into FREE. Called
// once during commit, after the new stream directory has been
// written (so the old directory's pages are represented in freed).
func (a *pageAllocator) MergeFreedIntoFree() {
	a.fpm.orInto(&a.freed)
	a.freed.clear()
}

// InitMarkStreamDirPageBusy marks p BUSY and FREED, used while
// replaying the stream directory's own page-map pages during open:
// those pages are owned by the committed snapshot but will be
// superseded by the next commit. Returns ErrMalformedDirectory if p
// was already BUSY or already FREED, which indicates directory
// corruption (a page claimed twice).
func (a *pageAllocator) InitMarkStreamDirPageBusy(p uint32) error {
	if !a.fpm.get(p) {
		if a.freed.get(p) {
			return ErrMalformedDirectory.Errorf("page %d already freed while marking stream directory pages busy", p)
		}
		return ErrMalformedDirectory.Errorf("page %d already busy while marking stream directory pages busy", p)
	}
	a.fpm.set(p, false)
	a.freed.set(p, true)
	return nil
}

// markBusy marks p BUSY (not FREED). Used while replaying stream page
// lists during open (spec §4.5 step 7): returns an error if p was
// already BUSY (double ownership) or is itself a reserved page.
func (a *pageAllocator) markBusy(p uint32) error {
	if isFpmPage(a.pageSize, p) || p == 0 {
		return ErrMalformedDirectory.Errorf("page %d is a reserved page and cannot be owned by a stream", p)
	}
	if !a.fpm.get(p) {
		return ErrMalformedDirectory.Errorf("page %d is owned by more than one stream", p)
	}
	a.fpm.set(p, false)
	return nil
}

// checkNoIllegalState verifies fpm[p] && freed[p] is false for every
// page (P4), and that page 0 plus every FPM page is BUSY and never
// FREED (P5).
func (a *pageAllocator) checkNoIllegalState() error {
	for p := uint32(0); p < a.numPages; p++ {
		if a.fpm.get(p) && a.freed.get(p) {
			return ErrMalformedDirectory.Errorf("page %d is marked both free and freed", p)
		}
		if (p == 0 || isFpmPage(a.pageSize, p)) && (a.fpm.get(p) || a.freed.get(p)) {
			return ErrMalformedDirectory.Errorf("reserved page %d must be busy and never freed", p)
		}
	}
	return nil
}
