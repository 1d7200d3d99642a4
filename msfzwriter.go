package msf

import "os"

// msfzAlignment is the byte alignment the writer enforces after the
// placeholder header and before the stream directory and the chunk
// table. Uncompressed stream fragments use the stream writer's own
// alignment instead (see MsfzStreamWriter.SetAlignment).
const msfzAlignment = 16

// MsfzWriter builds a new MSFZ container. Unlike Container, it has no
// commit protocol: data accumulates in memory (the current chunk
// buffer) and on disk (flushed chunks, uncompressed fragments) until
// Finish writes the stream directory, the chunk table, and finally
// the real header.
type MsfzWriter struct {
	file BackingFile
	pos  int64

	streams []msfzStreamEntry

	chunkBuf                []byte
	chunks                  []chunkEntry
	chunkCompression        Compression
	chunkThreshold          uint32
	compressStreamDirectory bool
}

// NewMsfzWriter creates a writer over file, which is truncated to
// empty first. options may be nil, in which case defaults apply.
func NewMsfzWriter(file BackingFile, options *Options) (*MsfzWriter, error) {
	if options == nil {
		options = NewOptions()
	}
	if err := file.Truncate(0); err != nil {
		return nil, ErrMsf.Errorf("truncating msfz output: %w", err)
	}

	w := &MsfzWriter{
		file:                    file,
		chunkCompression:        options.ChunkCompression,
		chunkThreshold:          clampChunkThreshold(options.ChunkSizeThreshold),
		compressStreamDirectory: options.CompressStreamDirectory,
		streams:                 []msfzStreamEntry{{isNil: true}}, // stream 0 reserved, nil
	}

	// Placeholder header; finish rewrites it with real values.
	if err := w.writeAt(make([]byte, msfzHeaderFixedSize)); err != nil {
		return nil, err
	}
	w.align(msfzAlignment)
	return w, nil
}

// NewMsfzWriterPath creates a new MSFZ file at path, truncating any
// existing file.
func NewMsfzWriterPath(path string, options *Options) (*MsfzWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, ErrMsf.Errorf("create error: %w", err)
	}
	w, err := NewMsfzWriter(newOSBackingFile(f), options)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func clampChunkThreshold(v uint32) uint32 {
	if v < MinChunkSize {
		return MinChunkSize
	}
	if v > MaxChunkSize {
		return MaxChunkSize
	}
	return v
}

// SetChunkCompression changes the compression mode applied to chunks
// flushed from now on; data already in the current chunk buffer is
// compressed with the new mode once flushed.
func (w *MsfzWriter) SetChunkCompression(c Compression) {
	w.chunkCompression = c
}

// SetChunkSizeThreshold changes the uncompressed-byte threshold that
// triggers a chunk flush, clamped to [MinChunkSize, MaxChunkSize].
func (w *MsfzWriter) SetChunkSizeThreshold(v uint32) {
	w.chunkThreshold = clampChunkThreshold(v)
}

// ReserveNumStreams grows the stream table to at least numStreams
// entries, filling new entries as nil streams. It never shrinks.
func (w *MsfzWriter) ReserveNumStreams(numStreams int) {
	if numStreams <= len(w.streams) {
		return
	}
	grown := make([]msfzStreamEntry, numStreams)
	copy(grown, w.streams)
	for i := len(w.streams); i < numStreams; i++ {
		grown[i].isNil = true
	}
	w.streams = grown
}

// NewStreamWriter appends a new stream and returns a writer for it.
func (w *MsfzWriter) NewStreamWriter() (uint32, *MsfzStreamWriter) {
	idx := uint32(len(w.streams))
	w.streams = append(w.streams, msfzStreamEntry{})
	return idx, w.StreamWriter(idx)
}

// StreamWriter returns a writer for an existing (possibly nil)
// stream index. Calling it more than once for the same index is
// permitted; each call starts a fresh append position at the
// stream's current fragment list.
func (w *MsfzWriter) StreamWriter(stream uint32) *MsfzStreamWriter {
	if stream >= uint32(len(w.streams)) {
		panic("msf: MsfzWriter.StreamWriter: stream index out of range")
	}
	w.streams[stream].isNil = false
	return &MsfzStreamWriter{
		w:                 w,
		stream:            stream,
		alignment:         4,
		chunkedCompressed: true,
	}
}

// EndChunk flushes the current chunk buffer, if non-empty. Calling it
// is never required; it is a hint that the data written so far and
// the data to follow compress better apart.
func (w *MsfzWriter) EndChunk() error {
	return w.finishCurrentChunk()
}

func (w *MsfzWriter) writeAt(p []byte) error {
	if _, err := w.file.WriteAt(p, w.pos); err != nil {
		return ErrMsf.Errorf("msfz write at %d: %w", w.pos, err)
	}
	w.pos += int64(len(p))
	return nil
}

// align advances the writer's logical position up to the next
// multiple of alignment without writing any bytes; any gap this
// leaves in the file reads back as zero.
func (w *MsfzWriter) align(alignment int64) int64 {
	rem := w.pos % alignment
	if rem != 0 {
		w.pos += alignment - rem
	}
	return w.pos
}

// writeToChunk appends data to the current chunk buffer, flushing
// first if appending would cross the threshold. It returns the chunk
// index and offset within that chunk where data now starts. All of
// data lands in a single chunk.
func (w *MsfzWriter) writeToChunk(data []byte) (chunk, offset uint32, err error) {
	if uint32(len(data)+len(w.chunkBuf)) >= w.chunkThreshold {
		if err := w.finishCurrentChunk(); err != nil {
			return 0, 0, err
		}
	}
	chunk = uint32(len(w.chunks))
	offset = uint32(len(w.chunkBuf))
	w.chunkBuf = append(w.chunkBuf, data...)
	return chunk, offset, nil
}

func (w *MsfzWriter) finishCurrentChunk() error {
	if len(w.chunkBuf) == 0 {
		return nil
	}
	compressed, err := compressBytes(w.chunkCompression, w.chunkBuf)
	if err != nil {
		return err
	}
	filePos := w.pos
	if err := w.writeAt(compressed); err != nil {
		return err
	}
	w.chunks = append(w.chunks, chunkEntry{
		CompressedSize:   uint32(len(compressed)),
		UncompressedSize: uint32(len(w.chunkBuf)),
		FileOffset:       uint64(filePos),
		Compression:      uint32(w.chunkCompression),
	})
	w.chunkBuf = w.chunkBuf[:0]
	return nil
}

// MsfzFinishOptions configures MsfzWriter.FinishWithOptions.
type MsfzFinishOptions struct {
	// MinFileSize pads the finished file to at least this many bytes.
	// Use MinFileSize16K for MSVC DIA-tool compatibility. Zero means
	// no padding.
	MinFileSize uint64

	// StreamDirCompression, if not CompressionNone, compresses the
	// stream directory before writing it.
	StreamDirCompression Compression
}

// MsfzSummary reports the shape of a just-finished MSFZ file.
type MsfzSummary struct {
	NumChunks  uint32
	NumStreams uint32
}

// Finish writes the stream directory, the chunk table, and the real
// header, compressing the stream directory iff
// Options.CompressStreamDirectory was set at construction, and with no
// minimum file size padding.
func (w *MsfzWriter) Finish() (MsfzSummary, error) {
	opts := MsfzFinishOptions{}
	if w.compressStreamDirectory {
		opts.StreamDirCompression = w.chunkCompression
	}
	return w.FinishWithOptions(opts)
}

// FinishWithOptions writes the stream directory, the chunk table, and
// the real header, applying opts. After Finish/FinishWithOptions
// returns, the writer must not be used again.
func (w *MsfzWriter) FinishWithOptions(opts MsfzFinishOptions) (MsfzSummary, error) {
	if err := w.finishCurrentChunk(); err != nil {
		return MsfzSummary{}, err
	}

	dirOffset := w.align(msfzAlignment)
	dirBytes := encodeMsfzStreamDir(w.streams)
	dirSizeUncompressed := uint32(len(dirBytes))

	var dirSizeCompressed uint32
	var dirCompression uint32
	if opts.StreamDirCompression != CompressionNone {
		compressed, err := compressBytes(opts.StreamDirCompression, dirBytes)
		if err != nil {
			return MsfzSummary{}, err
		}
		if err := w.writeAt(compressed); err != nil {
			return MsfzSummary{}, err
		}
		dirSizeCompressed = uint32(len(compressed))
		dirCompression = uint32(opts.StreamDirCompression)
	} else {
		if err := w.writeAt(dirBytes); err != nil {
			return MsfzSummary{}, err
		}
		dirSizeCompressed = dirSizeUncompressed
		dirCompression = uint32(CompressionNone)
	}

	chunkTableOffset := w.align(msfzAlignment)
	chunkTableBytes := encodeChunkTable(w.chunks)
	if err := w.writeAt(chunkTableBytes); err != nil {
		return MsfzSummary{}, err
	}

	h := &msfzHeader{
		Signature:                 msfzSignature,
		Version:                   msfzVersion0,
		NumStreams:                uint32(len(w.streams)),
		StreamDirCompression:      dirCompression,
		StreamDirOffset:           uint64(dirOffset),
		StreamDirSizeCompressed:   dirSizeCompressed,
		StreamDirSizeUncompressed: dirSizeUncompressed,
		NumChunks:                 uint32(len(w.chunks)),
		ChunkTableSize:            uint32(len(chunkTableBytes)),
		ChunkTableOffset:          uint64(chunkTableOffset),
	}
	if _, err := w.file.WriteAt(h.encode(), 0); err != nil {
		return MsfzSummary{}, ErrMsf.Errorf("writing msfz header: %w", err)
	}

	if opts.MinFileSize != 0 {
		size, err := w.file.Size()
		if err != nil {
			return MsfzSummary{}, ErrMsf.Errorf("stat msfz output: %w", err)
		}
		if uint64(size) < opts.MinFileSize {
			if err := w.file.Truncate(int64(opts.MinFileSize)); err != nil {
				return MsfzSummary{}, ErrMsf.Errorf("padding msfz output: %w", err)
			}
		}
	}

	return MsfzSummary{
		NumChunks:  uint32(len(w.chunks)),
		NumStreams: uint32(len(w.streams)),
	}, nil
}

// MsfzStreamWriter appends bytes to one stream. Writes are always
// appended; there is no random-access write support, mirroring the
// original's append-only stream writer.
type MsfzStreamWriter struct {
	w                 *MsfzWriter
	stream            uint32
	alignment         int64
	chunkedCompressed bool
}

// SetCompressionEnabled controls whether subsequent Write calls land
// in the chunked, compressed stream (true, the default) or as
// uncompressed bytes at an aligned file offset (false).
func (sw *MsfzStreamWriter) SetCompressionEnabled(v bool) {
	sw.chunkedCompressed = v
}

// SetAlignment sets the on-disk alignment applied when an uncompressed
// write starts an empty stream; later uncompressed writes to the
// stream continue at the current file position. Meaningless when
// chunked compression is enabled.
func (sw *MsfzStreamWriter) SetAlignment(v int64) {
	sw.alignment = v
}

// EndChunk flushes the writer's owning MsfzWriter's current chunk
// buffer, if non-empty.
func (sw *MsfzStreamWriter) EndChunk() error {
	return sw.w.finishCurrentChunk()
}

// Write appends buf to the stream, returning ErrInputTooLarge if doing
// so would make the stream's size reach the nil-stream sentinel.
func (sw *MsfzStreamWriter) Write(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	entry := &sw.w.streams[sw.stream]
	oldSize := entry.size()
	maxNewBytes := uint64(nilFragmentSize) - oldSize
	if uint64(len(buf)) >= maxNewBytes {
		return 0, ErrInputTooLarge.Errorf("write of %d bytes would overflow msfz stream %d", len(buf), sw.stream)
	}

	if sw.chunkedCompressed {
		chunk, offset, err := sw.w.writeToChunk(buf)
		if err != nil {
			return 0, err
		}
		addFragmentCompressed(entry, uint32(len(buf)), chunk, offset)
	} else {
		var fragOffset int64
		if oldSize == 0 {
			fragOffset = sw.w.align(sw.alignment)
		} else {
			fragOffset = sw.w.pos
		}
		if err := sw.w.writeAt(buf); err != nil {
			return 0, err
		}
		addFragmentUncompressed(entry, uint32(len(buf)), uint64(fragOffset))
	}
	return len(buf), nil
}

// addFragmentCompressed appends a compressed fragment to entry's
// list, coalescing with the previous fragment when it is contiguous
// within the same chunk.
func addFragmentCompressed(entry *msfzStreamEntry, size, chunk, offsetInChunk uint32) {
	if n := len(entry.fragments); n > 0 {
		last := &entry.fragments[n-1]
		if last.compressed && last.chunk == chunk && last.offsetInChunk+last.size == offsetInChunk {
			last.size += size
			return
		}
	}
	entry.fragments = append(entry.fragments, msfzFragment{
		size: size, compressed: true, chunk: chunk, offsetInChunk: offsetInChunk,
	})
}

// addFragmentUncompressed appends an uncompressed fragment to entry's
// list, coalescing with the previous fragment when it is contiguous
// in the file.
func addFragmentUncompressed(entry *msfzStreamEntry, size uint32, fileOffset uint64) {
	if n := len(entry.fragments); n > 0 {
		last := &entry.fragments[n-1]
		if !last.compressed && last.fileOffset+uint64(last.size) == fileOffset {
			last.size += size
			return
		}
	}
	entry.fragments = append(entry.fragments, msfzFragment{
		size: size, compressed: false, fileOffset: fileOffset,
	})
}
