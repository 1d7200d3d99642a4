// Copyright 2019 Vedran Vuk. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/microsoft/go-msf"
	"github.com/spf13/cobra"
)

func newExtractCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "extract <file> <stream-index>",
		Short: "Write one stream's bytes to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stream, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid stream index %q: %w", args[1], err)
			}
			return runExtract(args[0], uint32(stream), raw)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "for MSFZ streams stored as a single uncompressed fragment, copy the bytes directly from the backing file instead of going through the stream reader")
	return cmd
}

func runExtract(path string, stream uint32, raw bool) error {
	f, err := probeFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	isMsfz, err := msf.IsMsfz(f)
	if err != nil {
		return err
	}
	if isMsfz {
		return extractMsfz(path, stream, raw)
	}
	if raw {
		return errors.New("--raw is only supported for MSFZ streams stored as a single uncompressed fragment")
	}
	return extractBigMsf(path, stream)
}

func extractBigMsf(path string, stream uint32) error {
	opts := msf.NewOptions()
	opts.ReadOnly = true
	c, err := msf.OpenPath(path, opts)
	if err != nil {
		return err
	}
	defer c.Close()

	r, err := c.Reader(stream)
	if err != nil {
		return err
	}
	size, err := c.StreamSize(stream)
	if err != nil {
		return err
	}
	if size == msf.NilStreamSize || size == 0 {
		return nil
	}
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return err
	}
	_, err = os.Stdout.Write(buf)
	return err
}

func extractMsfz(path string, stream uint32, raw bool) error {
	m, err := msf.OpenMsfzPath(path)
	if err != nil {
		return err
	}
	defer m.Close()

	if raw {
		offset, size, ok := m.SingleUncompressedFragment(stream)
		if !ok {
			return fmt.Errorf("stream %d is not a single uncompressed fragment; omit --raw", stream)
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		rsc, err := msf.NewLimitedReadSeekCloser(f, offset, size)
		if err != nil {
			return err
		}
		defer rsc.Close()
		_, err = io.Copy(os.Stdout, rsc)
		return err
	}

	data, err := m.ReadStream(stream)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
