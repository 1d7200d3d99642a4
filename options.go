// Copyright 2019 Vedran Vuk. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package msf

// Options defines Container options.
type Options struct {

	// PageSize specifies the page size to use when creating a new
	// container. Must be a power of two in [MinPageSize, MaxPageSize].
	// Ignored when opening an existing container; the on-disk value
	// wins.
	// Default value: 4096
	PageSize uint32

	// SyncWrites specifies if the backing file should be fsync'd
	// immediately after the page-0 write that commits a transaction.
	// The MSF format itself never requires this; callers that need a
	// durable commit without external fsync should set it.
	// Default value: false
	SyncWrites bool

	// VerifyFpmOnOpen specifies if the free page map computed from
	// the stream directory should be compared, byte-for-byte, against
	// the on-disk active FPM snapshot. Disabling this is only useful
	// for read-only access to files with known-bad FPMs (see
	// SPEC_FULL.md §9 on clang-produced PDBs); it has no effect in
	// read-write mode, where the comparison is always fatal on
	// mismatch.
	// Default value: true
	VerifyFpmOnOpen bool

	// ReadOnly opens the container without permitting NewStream,
	// Writer, or Commit calls, which all return
	// ErrImmutableContainer. Also relaxes VerifyFpmOnOpen mismatches
	// from fatal to a logged warning.
	// Default value: false
	ReadOnly bool

	// MaxStreamCount caps the number of streams a container may hold.
	// Chosen by default so 16-bit stream indices in PDB consumers
	// don't overflow or collide with the nil-stream sentinel.
	// Default value: 65534 (0xFFFE)
	MaxStreamCount uint32

	// Logger receives diagnostic messages from the create, open, and
	// commit paths. If nil, a no-op logger is used.
	// Default value: nil (no-op)
	Logger Logger

	// ChunkCompression selects the compression codec an MSFZ writer
	// applies to each flushed chunk.
	// Default value: CompressionZstd
	ChunkCompression Compression

	// ChunkSizeThreshold is the uncompressed byte count an MSFZ
	// writer's current chunk buffer may reach before it is flushed
	// (compressed, appended to the file, and recorded in the chunk
	// table). Clamped to [MinChunkSize, MaxChunkSize].
	// Default value: 4194304 (4 MiB)
	ChunkSizeThreshold uint32

	// CompressStreamDirectory selects whether an MSFZ writer
	// compresses the stream directory bytes before writing them.
	// Default value: false
	CompressStreamDirectory bool
}

// NewOptions returns a new *Options instance.
func NewOptions() *Options {
	o := &Options{}
	o.init()
	return o
}

// init initializes options to default values.
func (o *Options) init() {
	o.PageSize = DefaultPageSize
	o.SyncWrites = false
	o.VerifyFpmOnOpen = true
	o.ReadOnly = false
	o.MaxStreamCount = DefaultMaxStreamCount
	o.Logger = nil
	o.ChunkCompression = CompressionZstd
	o.ChunkSizeThreshold = DefaultChunkThreshold
	o.CompressStreamDirectory = false
}

// logger returns o.Logger or a no-op logger if unset.
func (o *Options) logger() Logger {
	if o == nil || o.Logger == nil {
		return nopLogger{}
	}
	return o.Logger
}
