package msf

// Commit publishes every write made through a StreamWriter obtained
// from this container since the last Commit, by a single page-0
// write; the file is fsync'd afterwards only when Options.SyncWrites
// is set. It is a no-op if nothing has changed. See SPEC_FULL.md §4.7.
func (c *Container) Commit() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.commitLocked()
}

func (c *Container) commitLocked() error {
	if c.readOnly {
		return ErrImmutableContainer
	}
	if !c.dirty {
		return nil
	}

	newFpm := uint32(1)
	if c.activeFpm == 1 {
		newFpm = 2
	}

	dirResult, err := writeStreamDir(c.file, c.alloc, c.pageSize, c.streams, c.bufPool)
	if err != nil {
		return err
	}

	c.alloc.MergeFreedIntoFree()

	if err := writeFpmSnapshot(c.file, c.pageSize, c.alloc.numPages, &c.alloc.fpm, newFpm); err != nil {
		return err
	}

	page0 := make([]byte, c.pageSize)
	h := &bigHeader{
		PageSize:     c.pageSize,
		ActiveFpm:    newFpm,
		NumPages:     c.alloc.numPages,
		DirSizeBytes: dirResult.dirSizeBytes,
	}
	copy(h.Signature[:], bigMsfSignature)
	copy(page0[:bigHeaderFixedSize], h.encode())

	mapOff := bigHeaderFixedSize
	if mapOff+4*len(dirResult.mapPages) > len(page0) {
		return ErrMsf.Errorf("directory page map (%d entries) does not fit in page 0", len(dirResult.mapPages))
	}
	for i, p := range dirResult.mapPages {
		putU32(page0[mapOff+4*i:], p)
	}

	if _, err := c.file.WriteAt(page0, 0); err != nil {
		return err
	}
	if c.options.SyncWrites {
		if err := c.file.Sync(); err != nil {
			return err
		}
	}

	for _, p := range dirResult.dirPages {
		c.alloc.freed.set(p, true)
	}
	for _, p := range dirResult.mapPages {
		c.alloc.freed.set(p, true)
	}
	c.alloc.fresh.clear()
	c.alloc.nextFreePageHint = 3
	c.activeFpm = newFpm
	c.dirty = false

	c.options.logger().Infof("committed: %d pages, %d streams, active FPM %d", c.alloc.numPages, len(c.streams), newFpm)
	return nil
}
