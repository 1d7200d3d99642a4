// Copyright 2019 Vedran Vuk. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/microsoft/go-msf"
	"github.com/spf13/cobra"
)

func newCreateCmd() *cobra.Command {
	saved := loadSavedFlags()
	var pageSize uint32
	var sync bool

	cmd := &cobra.Command{
		Use:   "create <file>",
		Short: "Create a fresh, empty big-MSF container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(args[0], pageSize, sync)
		},
	}
	cmd.Flags().Uint32Var(&pageSize, "page-size", orDefault(saved.PageSize, msf.DefaultPageSize), "page size in bytes, must be a power of two")
	cmd.Flags().BoolVar(&sync, "sync", saved.Sync, "fsync the file after the commit that creates it")
	return cmd
}

func orDefault(v, def uint32) uint32 {
	if v == 0 {
		return def
	}
	return v
}

func runCreate(path string, pageSize uint32, sync bool) error {
	opts := msf.NewOptions()
	opts.PageSize = pageSize
	opts.SyncWrites = sync

	c, err := msf.CreatePath(path, opts)
	if err != nil {
		return err
	}
	if err := c.Commit(); err != nil {
		c.Close()
		return err
	}
	if err := c.Close(); err != nil {
		return err
	}

	if err := saveSavedFlags(savedFlags{PageSize: pageSize, Sync: sync}); err != nil {
		fmt.Printf("warning: could not save flag defaults: %v\n", err)
	}
	return nil
}
