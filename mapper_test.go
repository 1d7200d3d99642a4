package msf

import "testing"

func TestMapStreamRangeNil(t *testing.T) {
	var pages []uint32
	if _, _, ok := mapStreamRange(pages, 0x1000, 0, 0); ok {
		t.Fatal("empty read on nil stream should not map")
	}
	if _, _, ok := mapStreamRange(pages, 0x1000, 0x1000, 0x1000); ok {
		t.Fatal("any read on nil stream should not map")
	}
}

func TestMapStreamRangeBasic(t *testing.T) {
	pages := []uint32{5, 6, 7, 300, 301}
	const ps = 0x1000

	cases := []struct {
		name        string
		pos         uint64
		wanted      uint32
		wantOK      bool
		wantOffset  uint64
		wantTrasLen uint32
	}{
		{"empty read within stream boundary", 0, 0, false, 0, 0},
		{"empty read outside stream boundary", 0x1000_0000, 0, false, 0, 0},
		{"outside stream boundary", 0x1000_0000, 0x1000, false, 0, 0},
		{"aligned start, unaligned end, within first page", 0, 0x10, true, 0x5000, 0x10},
		{"aligned start, aligned end, single page", 0, 0x1000, true, 0x5000, 0x1000},
		{"aligned start, crosses page boundary, unaligned end", 0, 0x1eee, true, 0x5000, 0x1eee},
		{"aligned start, crosses page boundary, clipped at page boundary", 0, 0x3eee, true, 0x5000, 0x3000},
		{"aligned start, aligned end beyond stream size, max contiguous span", 0, 0x1000_0000, true, 0x5000, 0x3000},
		{"unaligned start, ends within first page", 0xccc, 0x10, true, 0x5ccc, 0x10},
		{"unaligned start, crosses page boundary, unaligned end", 0xccc, 0x1000, true, 0x5ccc, 0x1000},
		{"unaligned start, crosses page boundary, clipped at page boundary", 0xccc, 0x1000_0000, true, 0x5ccc, 0x2334},
	}

	for _, c := range cases {
		off, n, ok := mapStreamRange(pages, ps, c.pos, c.wanted)
		if ok != c.wantOK {
			t.Errorf("%s: ok = %v, want %v", c.name, ok, c.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if off != c.wantOffset || n != c.wantTrasLen {
			t.Errorf("%s: got (0x%x, 0x%x), want (0x%x, 0x%x)", c.name, off, n, c.wantOffset, c.wantTrasLen)
		}
	}
}

func TestPageCountForSize(t *testing.T) {
	cases := []struct {
		size     uint64
		pageSize uint32
		want     uint32
	}{
		{0, 4096, 0},
		{1, 4096, 1},
		{4096, 4096, 1},
		{4097, 4096, 2},
		{0x2000_0000, 4096, 0x2_0000},
	}
	for _, c := range cases {
		got := pageCountForSize(c.size, c.pageSize)
		if got != c.want {
			t.Errorf("pageCountForSize(%d, %d) = %d, want %d", c.size, c.pageSize, got, c.want)
		}
	}
}
