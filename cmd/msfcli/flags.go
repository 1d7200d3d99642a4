// Copyright 2019 Vedran Vuk. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"

	"github.com/vedranvuk/binaryex"
)

// savedFlags remembers the page size and sync setting the user last
// passed to `create`, so a later invocation without those flags
// reuses them instead of silently falling back to the library
// defaults. Purely a convenience; a missing or corrupt saved-flags
// file is never an error, just an empty set of remembered values.
type savedFlags struct {
	PageSize uint32
	Sync     bool
}

// savedFlagsPath returns the location of the saved-flags file,
// typically under the user's home directory.
func savedFlagsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".msfcli-flags")
}

// loadSavedFlags reads the saved-flags file, returning a zero-value
// savedFlags (meaning "no remembered defaults") if it does not exist
// or cannot be parsed.
func loadSavedFlags() savedFlags {
	var sf savedFlags
	f, err := os.Open(savedFlagsPath())
	if err != nil {
		return sf
	}
	defer f.Close()
	if err := binaryex.Read(f, &sf); err != nil {
		return savedFlags{}
	}
	return sf
}

// saveSavedFlags persists sf to the saved-flags file. Failures are
// not fatal to the command that triggered the save; the caller logs
// and moves on.
func saveSavedFlags(sf savedFlags) error {
	f, err := os.Create(savedFlagsPath())
	if err != nil {
		return err
	}
	defer f.Close()
	return binaryex.Write(f, &sf)
}
