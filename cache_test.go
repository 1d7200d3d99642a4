package msf

import "testing"

func TestPageBufferPoolAcquireZeroed(t *testing.T) {
	p := newPageBufferPool(4096 * 4)
	buf := p.acquire(4096)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("acquired buffer not zeroed at index %d", i)
		}
	}
	for i := range buf {
		buf[i] = 0xaa
	}
	p.release(buf)

	reused := p.acquire(4096)
	for i, b := range reused {
		if b != 0 {
			t.Fatalf("reused buffer not re-zeroed at index %d", i)
		}
	}
}

func TestPageBufferPoolEvictsToFit(t *testing.T) {
	p := newPageBufferPool(4096 * 2)
	p.release(make([]byte, 4096))
	p.release(make([]byte, 4096))
	if p.size != 4096*2 {
		t.Fatalf("pool size = %d, want %d", p.size, 4096*2)
	}

	// A third release must evict the oldest buffer to stay within
	// maxAlloc.
	p.release(make([]byte, 4096))
	if p.size > 4096*2 {
		t.Fatalf("pool size = %d, exceeds maxAlloc %d", p.size, 4096*2)
	}
}

func TestPageBufferPoolDisabledWhenMaxAllocNonPositive(t *testing.T) {
	p := newPageBufferPool(0)
	p.release(make([]byte, 4096))
	if p.size != 0 {
		t.Fatalf("pool size = %d, want 0 (pooling disabled)", p.size)
	}
}
