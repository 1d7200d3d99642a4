package msf

import (
	"io"
	"os"
	"sync"
)

// Msfz reads a flat, chunk-compressed MSFZ container. Unlike
// Container, it is read-only: there is no commit protocol, no page
// allocator, no FPM. Once opened its stream directory and chunk table
// are immutable, so ReadStream and GetStreamReader may be called
// concurrently from multiple goroutines; only the lazy chunk cache
// mutates after Open, and it does so through sync.Once.
type Msfz struct {
	file       BackingFile
	streamDir  []msfzStreamEntry
	chunkTable []chunkEntry
	chunkCache []chunkCacheSlot
	closer     io.Closer
}

// chunkCacheSlot lazily decompresses one chunk on first access.
type chunkCacheSlot struct {
	once sync.Once
	data []byte
	err  error
}

// OpenMsfz opens an MSFZ container, validating its header, stream
// directory, and chunk table eagerly; chunk payloads are decompressed
// lazily on first read.
func OpenMsfz(file BackingFile) (*Msfz, error) {
	hdrBuf := make([]byte, msfzHeaderFixedSize)
	if _, err := file.ReadAt(hdrBuf, 0); err != nil {
		return nil, ErrNotAnMsf.Errorf("reading msfz header: %w", err)
	}
	h, err := decodeMsfzHeader(hdrBuf)
	if err != nil {
		return nil, err
	}
	if h.NumStreams == 0 {
		return nil, ErrMalformedDirectory.Errorf("msfz stream directory is empty")
	}

	dirBytes := make([]byte, h.StreamDirSizeUncompressed)
	if codec, ok := compressionFromCode(h.StreamDirCompression); ok && codec != CompressionNone {
		compressed := make([]byte, h.StreamDirSizeCompressed)
		if _, err := file.ReadAt(compressed, int64(h.StreamDirOffset)); err != nil {
			return nil, ErrMalformedDirectory.Errorf("reading compressed stream directory: %w", err)
		}
		dirBytes, err = decompressBytes(codec, compressed, h.StreamDirSizeUncompressed)
		if err != nil {
			return nil, ErrMalformedDirectory.Errorf("decompressing stream directory: %w", err)
		}
	} else {
		if _, err := file.ReadAt(dirBytes, int64(h.StreamDirOffset)); err != nil {
			return nil, ErrMalformedDirectory.Errorf("reading stream directory: %w", err)
		}
	}

	streamDir, err := decodeMsfzStreamDir(dirBytes, h.NumStreams)
	if err != nil {
		return nil, err
	}

	var chunkTable []chunkEntry
	if h.NumChunks != 0 {
		chunkBytes := make([]byte, h.ChunkTableSize)
		if _, err := file.ReadAt(chunkBytes, int64(h.ChunkTableOffset)); err != nil {
			return nil, ErrMalformedHeader.Errorf("reading chunk table: %w", err)
		}
		chunkTable, err = decodeChunkTable(chunkBytes, h.NumChunks)
		if err != nil {
			return nil, err
		}
	}

	return &Msfz{
		file:       file,
		streamDir:  streamDir,
		chunkTable: chunkTable,
		chunkCache: make([]chunkCacheSlot, h.NumChunks),
	}, nil
}

// OpenMsfzPath opens an existing MSFZ container at path.
func OpenMsfzPath(path string) (*Msfz, error) {
	exists, err := FileExists(path)
	if err != nil {
		return nil, ErrMsf.Errorf("stat error: %w", err)
	}
	if !exists {
		return nil, ErrNotAnMsf.Errorf("%s does not exist", path)
	}
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, ErrMsf.Errorf("open error: %w", err)
	}
	m, err := OpenMsfz(newOSBackingFile(f))
	if err != nil {
		f.Close()
		return nil, err
	}
	m.closer = f
	return m, nil
}

// Close releases the backing file, if one was opened via
// OpenMsfzPath. Calling Close on an Msfz opened directly via OpenMsfz
// is a no-op; the caller owns that file.
func (m *Msfz) Close() error {
	if m.closer != nil {
		return m.closer.Close()
	}
	return nil
}

// NumStreams returns the total number of streams, including nil ones.
func (m *Msfz) NumStreams() uint32 {
	return uint32(len(m.streamDir))
}

// IsStreamValid reports whether stream is in range and non-nil.
func (m *Msfz) IsStreamValid(stream uint32) bool {
	if stream >= uint32(len(m.streamDir)) {
		return false
	}
	return !m.streamDir[stream].isNil
}

// StreamSize returns the byte size of stream, or an error if the
// index is out of range. A nil stream reports size 0.
func (m *Msfz) StreamSize(stream uint32) (uint64, error) {
	if stream >= uint32(len(m.streamDir)) {
		return 0, ErrStreamIndexOutOfRange.Errorf("stream %d out of range (have %d)", stream, len(m.streamDir))
	}
	return m.streamDir[stream].size(), nil
}

// SingleUncompressedFragment reports the file offset and length of
// stream's data when it consists of exactly one uncompressed
// fragment, allowing a caller to read it directly from the backing
// file without going through the chunk/fragment machinery. ok is
// false for nil streams, empty streams, multi-fragment streams, or
// streams stored in a compressed chunk.
func (m *Msfz) SingleUncompressedFragment(stream uint32) (offset, size int64, ok bool) {
	if stream >= uint32(len(m.streamDir)) {
		return 0, 0, false
	}
	entry := m.streamDir[stream]
	if entry.isNil || len(entry.fragments) != 1 {
		return 0, 0, false
	}
	f := entry.fragments[0]
	if f.compressed {
		return 0, 0, false
	}
	return int64(f.fileOffset), int64(f.size), true
}

// getChunkData returns the decompressed bytes of chunk, decompressing
// it on first access and caching the result thereafter.
func (m *Msfz) getChunkData(chunk uint32) ([]byte, error) {
	if chunk >= uint32(len(m.chunkCache)) {
		return nil, ErrInvalidStreamData.Errorf("chunk index %d out of range", chunk)
	}
	slot := &m.chunkCache[chunk]
	slot.once.Do(func() {
		entry := m.chunkTable[chunk]
		compressed := make([]byte, entry.CompressedSize)
		if _, err := m.file.ReadAt(compressed, int64(entry.FileOffset)); err != nil {
			slot.err = ErrInvalidStreamData.Errorf("reading chunk %d: %w", chunk, err)
			return
		}
		codec, ok := compressionFromCode(entry.Compression)
		if !ok {
			slot.err = ErrInvalidStreamData.Errorf("chunk %d uses unrecognized compression code %d", chunk, entry.Compression)
			return
		}
		slot.data, slot.err = decompressBytes(codec, compressed, entry.UncompressedSize)
	})
	return slot.data, slot.err
}

// getChunkSlice returns the size bytes of chunk starting at offset.
func (m *Msfz) getChunkSlice(chunk, offset, size uint32) ([]byte, error) {
	data, err := m.getChunkData(chunk)
	if err != nil {
		return nil, err
	}
	end := uint64(offset) + uint64(size)
	if end > uint64(len(data)) {
		return nil, ErrInvalidStreamData.Errorf("chunk %d byte range [%d,%d) out of range (len %d)", chunk, offset, end, len(data))
	}
	return data[offset:end], nil
}

// ReadStream returns the entirety of stream. A stream stored as a
// single compressed fragment is returned without copying, as a
// sub-slice of the cached decompressed chunk that is shared with every
// other caller (the retained sub-slice keeps the chunk alive); callers
// must not modify it. Any other stream is assembled into a freshly
// allocated buffer.
func (m *Msfz) ReadStream(stream uint32) ([]byte, error) {
	if stream >= uint32(len(m.streamDir)) {
		return nil, ErrStreamIndexOutOfRange.Errorf("stream %d out of range (have %d)", stream, len(m.streamDir))
	}
	entry := m.streamDir[stream]
	if entry.isNil || len(entry.fragments) == 0 {
		return nil, nil
	}
	if len(entry.fragments) == 1 && entry.fragments[0].compressed {
		f := entry.fragments[0]
		slice, err := m.getChunkSlice(f.chunk, f.offsetInChunk, f.size)
		if err != nil {
			return nil, err
		}
		return slice[:len(slice):len(slice)], nil
	}

	out := make([]byte, entry.size())
	pos := 0
	for _, f := range entry.fragments {
		if f.compressed {
			slice, err := m.getChunkSlice(f.chunk, f.offsetInChunk, f.size)
			if err != nil {
				return nil, err
			}
			copy(out[pos:], slice)
		} else {
			if _, err := m.file.ReadAt(out[pos:pos+int(f.size)], int64(f.fileOffset)); err != nil {
				return nil, ErrInvalidStreamData.Errorf("reading uncompressed fragment of stream %d: %w", stream, err)
			}
		}
		pos += int(f.size)
	}
	return out, nil
}

// MsfzStreamReader implements io.Reader, io.ReaderAt, and io.Seeker
// over one stream's fragment list.
type MsfzStreamReader struct {
	m         *Msfz
	fragments []msfzFragment
	size      uint64
	pos       int64
}

// GetStreamReader returns a reader over stream, without materializing
// its full contents up front.
func (m *Msfz) GetStreamReader(stream uint32) (*MsfzStreamReader, error) {
	if stream >= uint32(len(m.streamDir)) {
		return nil, ErrStreamIndexOutOfRange.Errorf("stream %d out of range (have %d)", stream, len(m.streamDir))
	}
	entry := m.streamDir[stream]
	if entry.isNil {
		return &MsfzStreamReader{m: m}, nil
	}
	return &MsfzStreamReader{m: m, fragments: entry.fragments, size: entry.size()}, nil
}

// Size returns the stream's byte size (0 for a nil stream).
func (r *MsfzStreamReader) Size() uint64 {
	return r.size
}

// ReadAt implements io.ReaderAt over the fragment list.
func (r *MsfzStreamReader) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, ErrInvalidStreamData.Errorf("negative read offset %d", off)
	}
	want := p
	cur := uint64(off)
	for _, f := range r.fragments {
		if len(want) == 0 {
			break
		}
		if cur >= uint64(f.size) {
			cur -= uint64(f.size)
			continue
		}
		avail := uint64(f.size) - cur
		n := uint64(len(want))
		if n > avail {
			n = avail
		}
		dst := want[:n]
		if f.compressed {
			slice, err := r.m.getChunkSlice(f.chunk, f.offsetInChunk+uint32(cur), uint32(n))
			if err != nil {
				return int(uint64(len(p)) - uint64(len(want))), err
			}
			copy(dst, slice)
		} else {
			if _, err := r.m.file.ReadAt(dst, int64(f.fileOffset)+int64(cur)); err != nil {
				return int(uint64(len(p)) - uint64(len(want))), err
			}
		}
		want = want[n:]
		cur = 0
	}
	read := len(p) - len(want)
	if len(want) > 0 {
		return read, io.EOF
	}
	return read, nil
}

// Read implements io.Reader, advancing the reader's cursor.
func (r *MsfzStreamReader) Read(p []byte) (int, error) {
	n, err := r.ReadAt(p, r.pos)
	r.pos += int64(n)
	return n, err
}

// Seek implements io.Seeker.
func (r *MsfzStreamReader) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = r.pos + offset
	case io.SeekEnd:
		newPos = int64(r.size) + offset
	default:
		return 0, ErrInvalidStreamData.Errorf("invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, ErrInvalidStreamData.Errorf("negative seek result %d", newPos)
	}
	r.pos = newPos
	return r.pos, nil
}
