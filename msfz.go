package msf

// MSFZ on-disk layout (spec §6.3): a flat, read-only, chunk-compressed
// container distinct from big MSF's page/FPM machinery. This file
// holds the shared wire-format types and constants used by both the
// reader (msfzreader.go) and writer (msfzwriter.go).

// msfzSignature is the 8-byte magic identifying an MSFZ file, distinct
// from the big-MSF signature.
var msfzSignature = [8]byte{'M', 'S', 'F', 'Z', 0, 0, 0, 0}

// IsMsfz reports whether file begins with the MSFZ signature, letting
// a caller (e.g. a CLI) choose between Open and OpenMsfz before
// committing to either reader.
func IsMsfz(file BackingFile) (bool, error) {
	head := make([]byte, len(msfzSignature))
	n, err := file.ReadAt(head, 0)
	if err != nil && n < len(msfzSignature) {
		return false, nil
	}
	var sig [8]byte
	copy(sig[:], head)
	return sig == msfzSignature, nil
}

const (
	// msfzVersion0 is the only version this package writes or reads.
	msfzVersion0 uint64 = 0

	// msfzHeaderFixedSize is the byte size of the fixed MSFZ header
	// (spec §6.3).
	msfzHeaderFixedSize = 8 + 8 + 4 + 4 + 8 + 4 + 4 + 4 + 4 + 8

	// chunkEntrySize is the byte size of one ChunkEntry (spec §6.3).
	chunkEntrySize = 4 + 4 + 8 + 4

	// nilFragmentSize terminates a stream's fragment list when the
	// stream itself is nil; it is only legal as the first word.
	nilFragmentSize = 0xFFFF_FFFF

	// fragmentLocationChunkMask is the top bit of a fragment's
	// location word: set means the fragment lives in a compressed
	// chunk, clear means it is a raw file offset.
	fragmentLocationChunkMask uint64 = 1 << 63

	// DefaultChunkThreshold is the uncompressed byte count an MSFZ
	// writer's chunk buffer may reach before it is flushed.
	DefaultChunkThreshold = 0x40_0000

	// MinChunkSize and MaxChunkSize bound Options.ChunkSizeThreshold.
	MinChunkSize = 0x1000
	MaxChunkSize = 1 << 30

	// MinFileSize16K pads a finished MSFZ file to at least this many
	// bytes, satisfying known MSVC DIA-SDK quirks around minimum PDB
	// file sizes.
	MinFileSize16K = 0x4000
)

// Compression identifies the codec applied to an MSFZ chunk or stream
// directory.
type Compression uint32

const (
	// CompressionNone means the bytes are stored as-is.
	CompressionNone Compression = 0
	// CompressionZstd compresses with zstd (github.com/klauspost/compress/zstd).
	CompressionZstd Compression = 1
	// CompressionDeflate compresses with deflate (github.com/klauspost/compress/flate).
	CompressionDeflate Compression = 2
)

// compressionFromCode converts an on-disk compression code to a
// Compression value, reporting false for an unrecognized code.
func compressionFromCode(code uint32) (Compression, bool) {
	switch Compression(code) {
	case CompressionNone, CompressionZstd, CompressionDeflate:
		return Compression(code), true
	default:
		return 0, false
	}
}

// msfzHeader is the fixed-size MSFZ file header (spec §6.3).
type msfzHeader struct {
	Signature                 [8]byte
	Version                   uint64
	NumStreams                uint32
	StreamDirCompression      uint32
	StreamDirOffset           uint64
	StreamDirSizeCompressed   uint32
	StreamDirSizeUncompressed uint32
	NumChunks                 uint32
	ChunkTableSize            uint32
	ChunkTableOffset          uint64
}

func (h *msfzHeader) encode() []byte {
	buf := make([]byte, msfzHeaderFixedSize)
	off := 0
	copy(buf[off:off+8], h.Signature[:])
	off += 8
	putU64(buf[off:off+8], h.Version)
	off += 8
	putU32(buf[off:off+4], h.NumStreams)
	off += 4
	putU32(buf[off:off+4], h.StreamDirCompression)
	off += 4
	putU64(buf[off:off+8], h.StreamDirOffset)
	off += 8
	putU32(buf[off:off+4], h.StreamDirSizeCompressed)
	off += 4
	putU32(buf[off:off+4], h.StreamDirSizeUncompressed)
	off += 4
	putU32(buf[off:off+4], h.NumChunks)
	off += 4
	putU32(buf[off:off+4], h.ChunkTableSize)
	off += 4
	putU64(buf[off:off+8], h.ChunkTableOffset)
	return buf
}

func decodeMsfzHeader(buf []byte) (*msfzHeader, error) {
	if len(buf) < msfzHeaderFixedSize {
		return nil, ErrMalformedHeader.Errorf("msfz header truncated: got %d bytes", len(buf))
	}
	h := &msfzHeader{}
	off := 0
	copy(h.Signature[:], buf[off:off+8])
	off += 8
	h.Version = getU64(buf[off : off+8])
	off += 8
	h.NumStreams = getU32(buf[off : off+4])
	off += 4
	h.StreamDirCompression = getU32(buf[off : off+4])
	off += 4
	h.StreamDirOffset = getU64(buf[off : off+8])
	off += 8
	h.StreamDirSizeCompressed = getU32(buf[off : off+4])
	off += 4
	h.StreamDirSizeUncompressed = getU32(buf[off : off+4])
	off += 4
	h.NumChunks = getU32(buf[off : off+4])
	off += 4
	h.ChunkTableSize = getU32(buf[off : off+4])
	off += 4
	h.ChunkTableOffset = getU64(buf[off : off+8])
	if h.Signature != msfzSignature {
		return nil, ErrNotAnMsf.Errorf("msfz signature mismatch")
	}
	if h.Version != msfzVersion0 {
		return nil, ErrUnsupportedVariant.Errorf("unsupported msfz version %d", h.Version)
	}
	if h.ChunkTableSize != h.NumChunks*chunkEntrySize {
		return nil, ErrMalformedHeader.Errorf(
			"chunk table size %d does not match num_chunks %d * %d",
			h.ChunkTableSize, h.NumChunks, chunkEntrySize)
	}
	return h, nil
}

// chunkEntry is one row of the MSFZ chunk table (spec §6.3).
type chunkEntry struct {
	CompressedSize   uint32
	UncompressedSize uint32
	FileOffset       uint64
	Compression      uint32
}

func (e *chunkEntry) encode() []byte {
	buf := make([]byte, chunkEntrySize)
	putU32(buf[0:4], e.CompressedSize)
	putU32(buf[4:8], e.UncompressedSize)
	putU64(buf[8:16], e.FileOffset)
	putU32(buf[16:20], e.Compression)
	return buf
}

func decodeChunkEntry(buf []byte) chunkEntry {
	return chunkEntry{
		CompressedSize:   getU32(buf[0:4]),
		UncompressedSize: getU32(buf[4:8]),
		FileOffset:       getU64(buf[8:16]),
		Compression:      getU32(buf[16:20]),
	}
}

func encodeChunkTable(entries []chunkEntry) []byte {
	buf := make([]byte, len(entries)*chunkEntrySize)
	for i, e := range entries {
		copy(buf[i*chunkEntrySize:(i+1)*chunkEntrySize], e.encode())
	}
	return buf
}

func decodeChunkTable(buf []byte, numChunks uint32) ([]chunkEntry, error) {
	want := int(numChunks) * chunkEntrySize
	if len(buf) < want {
		return nil, ErrMalformedHeader.Errorf("chunk table truncated: got %d bytes, want %d", len(buf), want)
	}
	entries := make([]chunkEntry, numChunks)
	for i := range entries {
		entries[i] = decodeChunkEntry(buf[i*chunkEntrySize : (i+1)*chunkEntrySize])
	}
	return entries, nil
}

// msfzFragment is one piece of a stream's data, either living inside a
// compressed chunk or directly in the file as raw bytes.
type msfzFragment struct {
	size uint32
	// compressed reports whether this fragment lives in a chunk.
	compressed bool
	// chunk and offsetInChunk are valid when compressed is true.
	chunk         uint32
	offsetInChunk uint32
	// fileOffset is valid when compressed is false.
	fileOffset uint64
}

// encodeLocation packs a fragment's location back into the on-disk
// 64-bit location word (spec §6.3).
func (f msfzFragment) encodeLocation() uint64 {
	if f.compressed {
		return fragmentLocationChunkMask | uint64(f.chunk)<<32 | uint64(f.offsetInChunk)
	}
	return f.fileOffset
}

// decodeFragmentLocation unpacks a location word into chunk/offset or
// file-offset form.
func decodeFragmentLocation(loc uint64) (compressed bool, chunk, offsetInChunk uint32, fileOffset uint64) {
	if loc&fragmentLocationChunkMask != 0 {
		bits := loc &^ fragmentLocationChunkMask
		return true, uint32(bits >> 32), uint32(bits), 0
	}
	return false, 0, 0, loc
}

// msfzStreamEntry holds one stream's fragment list; a nil stream has
// isNil set and no fragments.
type msfzStreamEntry struct {
	isNil     bool
	fragments []msfzFragment
}

func (s *msfzStreamEntry) size() uint64 {
	var total uint64
	for _, f := range s.fragments {
		total += uint64(f.size)
	}
	return total
}

// encodeMsfzStreamDir serializes the per-stream fragment lists (spec
// §6.3): nilFragmentSize for a nil stream, else (size, location) pairs
// terminated by a zero size.
func encodeMsfzStreamDir(streams []msfzStreamEntry) []byte {
	var out []byte
	var tmp [12]byte
	for _, s := range streams {
		if s.isNil {
			putU32(tmp[0:4], nilFragmentSize)
			out = append(out, tmp[0:4]...)
			continue
		}
		for _, f := range s.fragments {
			putU32(tmp[0:4], f.size)
			putU64(tmp[4:12], f.encodeLocation())
			out = append(out, tmp[0:12]...)
		}
		putU32(tmp[0:4], 0)
		out = append(out, tmp[0:4]...)
	}
	return out
}

// decodeMsfzStreamDir parses the bytes produced by
// encodeMsfzStreamDir for numStreams streams.
func decodeMsfzStreamDir(buf []byte, numStreams uint32) ([]msfzStreamEntry, error) {
	streams := make([]msfzStreamEntry, numStreams)
	pos := 0
	for i := range streams {
		if pos+4 > len(buf) {
			return nil, ErrMalformedDirectory.Errorf("msfz stream dir truncated at stream %d", i)
		}
		size := getU32(buf[pos : pos+4])
		if size == nilFragmentSize {
			streams[i].isNil = true
			pos += 4
			continue
		}
		pos += 4
		for size != 0 {
			if size == nilFragmentSize {
				return nil, ErrInvalidStreamData.Errorf("illegal fragment size sentinel mid-stream %d", i)
			}
			if pos+8 > len(buf) {
				return nil, ErrMalformedDirectory.Errorf("msfz stream dir truncated reading fragment of stream %d", i)
			}
			loc := getU64(buf[pos : pos+8])
			pos += 8
			compressed, chunk, offInChunk, fileOff := decodeFragmentLocation(loc)
			streams[i].fragments = append(streams[i].fragments, msfzFragment{
				size:          size,
				compressed:    compressed,
				chunk:         chunk,
				offsetInChunk: offInChunk,
				fileOffset:    fileOff,
			})
			if pos+4 > len(buf) {
				return nil, ErrMalformedDirectory.Errorf("msfz stream dir truncated at stream %d terminator", i)
			}
			size = getU32(buf[pos : pos+4])
			pos += 4
		}
	}
	return streams, nil
}
