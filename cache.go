package msf

import "container/list"

// pageBufferPool is a small FIFO-bounded reuse pool for whole-page
// scratch buffers, used while assembling the stream directory and its
// page map so repeated commits don't keep allocating and discarding
// page-sized slices. Adapted from the teacher's cell cache eviction
// queue (container/list, evict-from-front-until-it-fits); buffers are
// pooled by length instead of by key, since a scratch buffer has no
// natural key of its own.
type pageBufferPool struct {
	bufs     *list.List
	size     int64
	maxAlloc int64
}

// newPageBufferPool returns a pool that holds at most maxAlloc bytes
// of pooled buffers at a time. maxAlloc <= 0 disables pooling:
// acquire always allocates and release is a no-op.
func newPageBufferPool(maxAlloc int64) *pageBufferPool {
	return &pageBufferPool{bufs: list.New(), maxAlloc: maxAlloc}
}

// acquire returns a zeroed buffer of exactly n bytes, reusing a
// pooled one of the same length when available.
func (p *pageBufferPool) acquire(n int) []byte {
	for e := p.bufs.Front(); e != nil; e = e.Next() {
		buf := e.Value.([]byte)
		if len(buf) == n {
			p.bufs.Remove(e)
			p.size -= int64(len(buf))
			for i := range buf {
				buf[i] = 0
			}
			return buf
		}
	}
	return make([]byte, n)
}

// release returns buf to the pool, evicting from the front until the
// pool's total pooled size fits within maxAlloc.
func (p *pageBufferPool) release(buf []byte) {
	if p.maxAlloc <= 0 || int64(len(buf)) > p.maxAlloc {
		return
	}
	for p.size+int64(len(buf)) > p.maxAlloc {
		front := p.bufs.Front()
		if front == nil {
			break
		}
		p.bufs.Remove(front)
		p.size -= int64(len(front.Value.([]byte)))
	}
	p.bufs.PushBack(buf)
	p.size += int64(len(buf))
}
