// Copyright 2019 Vedran Vuk. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

// Package msf implements the Multi-Stream File format: a paged,
// transactional container holding a directory of independently
// addressable byte streams, as used by Microsoft PDB files.
//
// A container is a single backing file divided into fixed-size pages.
// Page 0 carries the header and the stream directory's page map;
// every other page belongs either to a stream or to one of the two
// alternating free-page-map snapshots. Streams are read and written
// through a StreamReader/StreamWriter pair obtained from an open
// Container; nothing is visible to a concurrent reader of the file
// until Commit writes a new page 0 that atomically promotes the
// modified snapshot to current.
//
// Compressed, read-only containers (the MSFZ variant) are handled by
// the separate Msfz and MsfzWriter types in this package instead: MSFZ
// trades the page/FPM machinery for a flat chunk table, since it is
// never mutated in place.
package msf

import (
	"os"
	"sync"
)

// Container is an open MSF container. Its methods take the mutex (the
// read lock for queries and Reader, the write lock for NewStream,
// Writer, and Commit), but StreamReader and StreamWriter do their I/O
// without it, so streams must not be written concurrently with other
// reads, writes, or Commit.
type Container struct {
	mutex   sync.RWMutex
	options *Options
	file    BackingFile

	pageSize uint32
	readOnly bool

	// activeFpm is the FPM snapshot number (1 or 2) that was active
	// on disk when this container was opened or last committed.
	activeFpm uint32

	alloc   *pageAllocator
	bufPool *pageBufferPool

	// streams holds one entry per stream index; index 0 is the
	// reserved old stream directory and is never exposed.
	streams []streamState

	// dirty is true once any stream has been written to since the
	// last Commit; Commit is a no-op when false.
	dirty bool

	closed bool
}

// Create initializes a brand-new container on file, which must be
// empty (or will be truncated to empty). Close must be called when
// done to release the backing file.
func Create(file BackingFile, options *Options) (*Container, error) {
	if options == nil {
		options = NewOptions()
	}
	if !isPageSizeValid(options.PageSize) {
		return nil, ErrMsf.Errorf("invalid page size %d", options.PageSize)
	}
	if err := file.Truncate(0); err != nil {
		return nil, ErrMsf.Errorf("truncate error: %w", err)
	}

	ps := options.PageSize
	// Page 0 (header) + relative pages 1,2 (FPM snapshots) of the
	// first interval are reserved from the start.
	numPages := uint32(3)
	if numPages > ps {
		numPages = ps
	}

	c := &Container{
		options:   options,
		file:      file,
		pageSize:  ps,
		activeFpm: 1,
		alloc:     newPageAllocator(ps, numPages),
		bufPool:   newPageBufferPool(int64(ps) * 4),
		streams:   []streamState{{size: 0}}, // stream 0: old stream directory
		dirty:     true,
	}
	// The 4 fixed-index streams PDB consumers expect at indices 1-4
	// are created as nil streams, matching the original's create_for.
	for i := 0; i < 4; i++ {
		if _, err := c.NewStream(); err != nil {
			return nil, err
		}
	}
	options.logger().Infof("created container: page size %d", ps)
	if err := c.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

// CreatePath creates a brand-new container at path, overwriting any
// existing file, and wraps it in an *os.File-backed Container.
func CreatePath(path string, options *Options) (*Container, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, ErrMsf.Errorf("create error: %w", err)
	}
	c, err := Create(newOSBackingFile(f), options)
	if err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

// OpenPath opens an existing container at path. Returns
// ErrNotAnMsf.Errorf("%s does not exist") if path does not exist.
func OpenPath(path string, options *Options) (*Container, error) {
	exists, err := FileExists(path)
	if err != nil {
		return nil, ErrMsf.Errorf("stat error: %w", err)
	}
	if !exists {
		return nil, ErrNotAnMsf.Errorf("%s does not exist", path)
	}
	flag := os.O_RDWR
	if options != nil && options.ReadOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, ErrMsf.Errorf("open error: %w", err)
	}
	c, err := Open(newOSBackingFile(f), options)
	if err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

// NumStreams returns the number of streams, including the reserved
// stream 0.
func (c *Container) NumStreams() uint32 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return uint32(len(c.streams))
}

// StreamSize returns the logical size of the stream at index, or
// NilStreamSize if the stream is nil. Returns ErrStreamIndexOutOfRange
// for an out-of-range index.
func (c *Container) StreamSize(index uint32) (uint32, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if index == 0 || int(index) >= len(c.streams) {
		return 0, ErrStreamIndexOutOfRange.Errorf("stream index %d out of range", index)
	}
	return c.streams[index].size, nil
}

// NewStream appends a new nil stream and returns its index. The
// stream has no pages and size NilStreamSize until first written.
func (c *Container) NewStream() (uint32, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.readOnly {
		return 0, ErrImmutableContainer
	}
	if uint32(len(c.streams)) >= c.options.MaxStreamCount {
		return 0, ErrMsf.Errorf("stream count limit %d reached", c.options.MaxStreamCount)
	}
	c.streams = append(c.streams, streamState{size: NilStreamSize})
	c.dirty = true
	return uint32(len(c.streams) - 1), nil
}

// Reader returns a StreamReader over the stream at index.
func (c *Container) Reader(index uint32) (*StreamReader, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if index == 0 || int(index) >= len(c.streams) {
		return nil, ErrStreamIndexOutOfRange.Errorf("stream index %d out of range", index)
	}
	return newStreamReader(c.file, c.pageSize, &c.streams[index]), nil
}

// Writer returns a StreamWriter over the stream at index. Writes made
// through it are visible at once to this Container's Readers; they
// survive reopen only after Commit.
func (c *Container) Writer(index uint32) (*StreamWriter, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.readOnly {
		return nil, ErrImmutableContainer
	}
	if index == 0 || int(index) >= len(c.streams) {
		return nil, ErrStreamIndexOutOfRange.Errorf("stream index %d out of range", index)
	}
	c.dirty = true
	return newStreamWriter(c.file, c.pageSize, c.alloc, &c.streams[index]), nil
}

// Close releases the backing file. It does not commit pending writes;
// call Commit first if they should survive.
func (c *Container) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.file.Close(); err != nil {
		return ErrMsf.Errorf("close error: %w", err)
	}
	return nil
}
