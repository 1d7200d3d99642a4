package msf

import (
	"bytes"
	"strings"
	"testing"
)

const friendsRomans = `
Friends, Romans, countrymen, lend me your ears;
I come to bury Caesar, not to praise him.
The evil that men do lives after them;
The good is oft interred with their bones;
So let it be with Caesar. The noble Brutus
Hath told you Caesar was ambitious:
`

// streamWriteTester drives writes through a real Container/StreamWriter
// while shadowing the expected bytes in a plain buffer, so each write
// can be checked against both the stream's reported size and its
// actual page contents.
type streamWriteTester struct {
	t        *testing.T
	c        *Container
	index    uint32
	expected []byte
}

func newStreamWriteTester(t *testing.T) *streamWriteTester {
	t.Helper()
	c, err := Create(newMemBackingFile(), NewOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	idx, err := c.NewStream()
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	return &streamWriteTester{t: t, c: c, index: idx}
}

func (st *streamWriteTester) writeAt(pos uint64, data []byte) {
	st.t.Helper()
	w, err := st.c.Writer(st.index)
	if err != nil {
		st.t.Fatalf("Writer: %v", err)
	}
	if _, err := w.WriteAt(data, int64(pos)); err != nil {
		st.t.Fatalf("WriteAt(pos=%d, len=%d): %v", pos, len(data), err)
	}

	end := pos + uint64(len(data))
	if end > uint64(len(st.expected)) {
		grown := make([]byte, end)
		copy(grown, st.expected)
		st.expected = grown
	}
	copy(st.expected[pos:end], data)

	st.checkData()
}

func (st *streamWriteTester) checkData() {
	st.t.Helper()
	size, err := st.c.StreamSize(st.index)
	if err != nil {
		st.t.Fatalf("StreamSize: %v", err)
	}
	if int(size) != len(st.expected) {
		st.t.Fatalf("stream size = %d, want %d", size, len(st.expected))
	}

	r, err := st.c.Reader(st.index)
	if err != nil {
		st.t.Fatalf("Reader: %v", err)
	}
	got := make([]byte, len(st.expected))
	if len(got) > 0 {
		if _, err := r.ReadAt(got, 0); err != nil {
			st.t.Fatalf("ReadAt: %v", err)
		}
	}
	if !bytes.Equal(got, st.expected) {
		st.t.Fatalf("stream contents mismatch:\ngot:  %x\nwant: %x", got, st.expected)
	}
}

func TestStreamWriteHelloWorld(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0, []byte("Hello, world!"))
}

func TestStreamWriteSimple(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0, []byte("Alpha_"))
	st.writeAt(6, []byte("Bravo_"))
	st.writeAt(12, []byte("Charlie_"))
	st.writeAt(6, []byte("Delta_"))
}

// Zero-extend with a small amount of data that does not cross the page
// boundary where zero-extend starts.
func TestStreamZeroExtendUnalignedStartSmall(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(10, []byte("Hello!"))
}

// Zero-extend crossing the page boundary where zero-extend starts,
// spanning several complete zero-filled pages.
func TestStreamZeroExtendCrossPageMany(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0, []byte("Hello"))
	st.writeAt(0x2ffe, []byte("World!"))
}

// Unaligned start, zero-extend finishes within a single page.
func TestStreamZeroExtendUnalignedStartSinglePage(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0, []byte("old"))
	st.writeAt(10, []byte("new"))
}

func TestStreamZeroExtendCrossPagesAlignedEnd(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0, []byte("old"))
	st.writeAt(10, bytes.Repeat([]byte{0xaa}, 0x1ff6)) // ends at page-aligned boundary
	if len(st.expected) != 0x2000 {
		t.Fatalf("final size = 0x%x, want 0x2000", len(st.expected))
	}
}

func TestStreamZeroExtendCrossPagesUnalignedEnd(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0, []byte("old"))
	st.writeAt(10, bytes.Repeat([]byte{0xaa}, 0x2000))
	if len(st.expected) != 0x200a {
		t.Fatalf("final size = 0x%x, want 0x200a", len(st.expected))
	}
}

func TestStreamZeroExtendAlignedStartUnalignedEnd(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0x2000, []byte("alpha"))
}

func TestStreamZeroExtendAlignedStartPagesUnalignedEnd(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0x0000, bytes.Repeat([]byte{0xaa}, 0x1000))
	st.writeAt(0x2010, []byte("alpha"))
}

// Aligned start, overwrite does not extend the stream.
func TestStreamOverwriteAlignedStartSinglePage(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0, []byte("alpha bravo charlie delta"))
	st.writeAt(0, []byte("TANGO"))
}

// Unaligned start, overwrite does not extend the stream.
func TestStreamOverwriteUnalignedStartSinglePage(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0, []byte("alpha bravo charlie delta"))
	st.writeAt(6, []byte("TANGO"))
}

// Unaligned start, overwrite extends the stream within the same page.
func TestStreamOverwriteExtendWithinPage(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0, []byte("alpha bravo"))
	st.writeAt(12, []byte("TANGO"))
}

// Unaligned start, overwrite extends the stream across several pages.
func TestStreamOverwriteExtendAcrossPages(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0, []byte("alpha bravo"))
	big := strings.Repeat(friendsRomans, 10)
	st.writeAt(12, []byte(big))
}

func TestStreamOverwriteManyPages(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0, bytes.Repeat([]byte{0xcc}, 0x10_000))
	st.writeAt(0x0f00, []byte(friendsRomans))
	st.writeAt(0x1f00, []byte(strings.Repeat(friendsRomans, 10)))
}

// Exercises the case where an overwritten page's tail is unaligned but
// the stream already has enough pages assigned to cover it.
func TestStreamOverwriteUnalignedEnd(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0, bytes.Repeat([]byte{0xcc}, 0x2_000))
	st.writeAt(0xffe, []byte("abcd"))
}

func TestStreamOverwriteCrossPageTail(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0, bytes.Repeat([]byte{0xcc}, 0x1_005))
	st.writeAt(0xffe, []byte("__abcdefgh"))
}

func TestStreamOverwriteFullyWithinSmallRange(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0, bytes.Repeat([]byte{0xcc}, 0xc))
	st.writeAt(0, bytes.Repeat([]byte{0xaa}, 0xaaaa))
}

func TestStreamWriteManyPieces(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0, []byte("Alpha_"))
	st.writeAt(6, []byte("Bravo_"))
	st.writeAt(12, []byte("Charlie_"))
	st.writeAt(6, []byte("Delta_"))
	st.writeAt(50, []byte("Zulu"))
	st.writeAt(0, []byte("__Wiffleball__"))
	st.writeAt(5, []byte("__Garrus__"))
}

func TestStreamWriteOutOfOrder(t *testing.T) {
	st := newStreamWriteTester(t)
	st.writeAt(0x35, []byte("!"))
	st.writeAt(0, []byte("zzz"))
}

func TestStreamWriteEmptyBuffer(t *testing.T) {
	c, err := Create(newMemBackingFile(), NewOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	idx, err := c.NewStream()
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	w, err := c.Writer(idx)
	if err != nil {
		t.Fatalf("Writer: %v", err)
	}
	if _, err := w.Write(nil); err != nil {
		t.Fatalf("Write(nil): %v", err)
	}
	size, err := c.StreamSize(idx)
	if err != nil {
		t.Fatalf("StreamSize: %v", err)
	}
	if size != 0 {
		t.Fatalf("size = %d, want 0 (empty write must not extend a nil stream)", size)
	}
}

// Writing nothing to an out-of-range position must not grow the
// stream: a zero-length WriteAt is a pure no-op.
func TestStreamWriteAtEmptyNoGrow(t *testing.T) {
	c, err := Create(newMemBackingFile(), NewOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	idx, err := c.NewStream()
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	w, err := c.Writer(idx)
	if err != nil {
		t.Fatalf("Writer: %v", err)
	}
	if _, err := w.WriteAt(nil, 100); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	size, err := c.StreamSize(idx)
	if err != nil {
		t.Fatalf("StreamSize: %v", err)
	}
	if size != 0 {
		t.Fatalf("size = %d, want 0", size)
	}
}

// Extends a stream across enough pages to exercise the allocator-run
// batching path in growAppend.
func TestStreamWriteExtendLarge(t *testing.T) {
	c, err := Create(newMemBackingFile(), NewOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	idx, err := c.NewStream()
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	w, err := c.Writer(idx)
	if err != nil {
		t.Fatalf("Writer: %v", err)
	}
	large := make([]byte, 0x10000)
	large[0xffff] = 0xff
	if _, err := w.Write(large); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	r, err := c.Reader(idx)
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}
	got := make([]byte, len(large))
	if _, err := r.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, large) {
		t.Fatal("round-tripped data mismatch after commit")
	}
}

func TestStreamMultipleStreamsIndependent(t *testing.T) {
	c, err := Create(newMemBackingFile(), NewOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	i1, _ := c.NewStream()
	i2, _ := c.NewStream()
	i3, _ := c.NewStream()

	w1, _ := c.Writer(i1)
	w1.Write([]byte("Sponge Bob!"))
	w2, _ := c.Writer(i2)
	w2.Write([]byte("Squidward!"))
	w3, _ := c.Writer(i3)
	w3.Write([]byte("Mr Crabs!"))

	if err := c.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	for idx, want := range map[uint32]string{
		i1: "Sponge Bob!",
		i2: "Squidward!",
		i3: "Mr Crabs!",
	} {
		r, err := c.Reader(idx)
		if err != nil {
			t.Fatalf("Reader(%d): %v", idx, err)
		}
		got := make([]byte, len(want))
		if _, err := r.ReadAt(got, 0); err != nil {
			t.Fatalf("ReadAt(%d): %v", idx, err)
		}
		if string(got) != want {
			t.Fatalf("stream %d = %q, want %q", idx, got, want)
		}
	}
}
