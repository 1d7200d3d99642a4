// Copyright 2019 Vedran Vuk. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/microsoft/go-msf"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print stream count and sizes for an MSF or MSFZ container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(args[0])
		},
	}
}

func runInspect(path string) error {
	opts := msf.NewOptions()
	opts.ReadOnly = true

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
		return inspectMsfz(path)
	}
	return inspectBigMsf(path, opts)
}

func inspectBigMsf(path string, opts *msf.Options) error {
	c, err := msf.OpenPath(path, opts)
	if err != nil {
		return err
	}
	defer c.Close()

	n := c.NumStreams()
	fmt.Printf("format: big MSF\nstreams: %d\n", n)
	for i := uint32(1); i < n; i++ {
		size, err := c.StreamSize(i)
		if err != nil {
			return err
		}
		if size == msf.NilStreamSize {
			fmt.Printf("  [%d] nil\n", i)
			continue
		}
		fmt.Printf("  [%d] %d bytes\n", i, size)
	}
	return nil
}

func inspectMsfz(path string) error {
	m, err := msf.OpenMsfzPath(path)
	if err != nil {
		return err
	}
	defer m.Close()

	n := m.NumStreams()
	fmt.Printf("format: MSFZ\nstreams: %d\n", n)
	for i := uint32(0); i < n; i++ {
		if !m.IsStreamValid(i) {
			fmt.Printf("  [%d] nil\n", i)
			continue
		}
		size, err := m.StreamSize(i)
		if err != nil {
			return err
		}
		fmt.Printf("  [%d] %d bytes\n", i, size)
	}
	return nil
}
