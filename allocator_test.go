package msf

import "testing"

// With pageSize 0x1000, a fresh allocator of 3 pages reserves page 0
// (header) and pages 1, 2 (the two FPM snapshots of the first
// interval) as BUSY from the start.
func TestNewPageAllocatorReservesFixedPages(t *testing.T) {
	a := newPageAllocator(0x1000, 3)
	for p := uint32(0); p < 3; p++ {
		if a.fpm.get(p) {
			t.Fatalf("page %d should be BUSY (reserved), fpm bit is set", p)
		}
		if a.freed.get(p) {
			t.Fatalf("page %d should not be FREED at init", p)
		}
	}
}

func TestAllocPagesSingleRun(t *testing.T) {
	a := newPageAllocator(0x1000, 3)
	first, run, err := a.AllocPages(4)
	if err != nil {
		t.Fatalf("AllocPages: %v", err)
	}
	if first != 3 || run != 4 {
		t.Fatalf("got (first=%d, run=%d), want (3, 4)", first, run)
	}
	for p := first; p < first+run; p++ {
		if a.fpm.get(p) {
			t.Fatalf("allocated page %d still marked FREE", p)
		}
		if !a.fresh.get(p) {
			t.Fatalf("allocated page %d should be FRESH", p)
		}
	}
}

// A requested run that would cross into the next interval's two
// reserved FPM pages (relative offsets 1 and 2, i.e. global pages
// 0x1001 and 0x1002) must stop short, handing back a shorter run
// rather than silently allocating over a reserved page. Relative
// offset 0 of the second interval (global page 0x1000) is an ordinary
// data page and is included in the run.
func TestAllocPagesStopsAtReservedBoundary(t *testing.T) {
	a := newPageAllocator(0x1000, 3)
	wantRun := uint32(0x1001 - 3) // pages 3..0x1000 inclusive
	first, run, err := a.AllocPages(wantRun + 10)
	if err != nil {
		t.Fatalf("AllocPages: %v", err)
	}
	if first != 3 {
		t.Fatalf("first = %d, want 3", first)
	}
	if run != wantRun {
		t.Fatalf("run = %d, want %d (must stop before the next interval's reserved pages)", run, wantRun)
	}
	// Pages 0x1001 and 0x1002 (the next interval's FPM pages) must
	// remain reserved, never handed out by this call.
	if a.fpm.get(0x1001) || a.fresh.get(0x1001) {
		t.Fatal("next interval's first FPM page must not have been touched")
	}
}

func TestAllocPageSingle(t *testing.T) {
	a := newPageAllocator(0x1000, 3)
	p, err := a.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	if p != 3 {
		t.Fatalf("p = %d, want 3", p)
	}
	p2, err := a.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	if p2 != 4 {
		t.Fatalf("p2 = %d, want 4", p2)
	}
}

// MakePageFresh must be a no-op on a page already marked fresh in this
// transaction (e.g. one just allocated), and otherwise must free the
// old page and swap in a newly allocated one.
func TestMakePageFreshNoOpWhenAlreadyFresh(t *testing.T) {
	a := newPageAllocator(0x1000, 3)
	p, err := a.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	before := p
	if err := a.MakePageFresh(&p); err != nil {
		t.Fatalf("MakePageFresh: %v", err)
	}
	if p != before {
		t.Fatalf("MakePageFresh changed an already-fresh page: %d -> %d", before, p)
	}
	if a.freed.get(before) {
		t.Fatal("an already-fresh page must not be marked FREED")
	}
}

func TestMakePageFreshCowsOldPage(t *testing.T) {
	a := newPageAllocator(0x1000, 3)
	old, err := a.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	// Simulate the page having survived a commit: post-commit cleanup
	// clears every fresh bit (commitLocked in commit.go) while leaving
	// the page BUSY, since it is still owned by a stream.
	a.fresh.clear()

	p := old
	if err := a.MakePageFresh(&p); err != nil {
		t.Fatalf("MakePageFresh: %v", err)
	}
	if p == old {
		t.Fatal("MakePageFresh should have allocated a new page")
	}
	if !a.freed.get(old) {
		t.Fatal("old page should be marked FREED")
	}
	if !a.fresh.get(p) {
		t.Fatal("new page should be marked FRESH")
	}
}

func TestMergeFreedIntoFree(t *testing.T) {
	a := newPageAllocator(0x1000, 3)
	p, err := a.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	a.freed.set(p, true) // pretend p was superseded by a cow this transaction

	a.MergeFreedIntoFree()

	if !a.fpm.get(p) {
		t.Fatalf("page %d should be FREE after merge", p)
	}
	if a.freed.get(p) {
		t.Fatal("freed bit should be cleared after merge")
	}
}

func TestCheckNoIllegalState(t *testing.T) {
	a := newPageAllocator(0x1000, 3)
	if err := a.checkNoIllegalState(); err != nil {
		t.Fatalf("fresh allocator should have no illegal state: %v", err)
	}

	p, err := a.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	// Force the illegal combination (fpm=1, freed=1) on an existing
	// page and confirm it is caught.
	a.fpm.set(p, true)
	a.freed.set(p, true)
	if err := a.checkNoIllegalState(); err == nil {
		t.Fatal("expected an error for a page marked both free and freed")
	}
}

// markBusy is used while replaying a decoded stream directory's page
// ownership during Open (spec §4.5 step 7), against an allocator
// already sized to the header's page count — unlike AllocPage, it
// never grows the allocator itself.
func TestMarkBusyRejectsReservedAndDoubleOwnership(t *testing.T) {
	a := newPageAllocator(0x1000, 4)
	if err := a.markBusy(1); err == nil {
		t.Fatal("markBusy on a reserved FPM page should fail")
	}
	if err := a.markBusy(0); err == nil {
		t.Fatal("markBusy on page 0 should fail")
	}

	if err := a.markBusy(3); err != nil {
		t.Fatalf("markBusy(3): %v", err)
	}
	if err := a.markBusy(3); err == nil {
		t.Fatal("second markBusy(3) should fail: page already owned")
	}
}
