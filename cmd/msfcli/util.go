// Copyright 2019 Vedran Vuk. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/microsoft/go-msf"
)

// probeFile opens path read-only and wraps it as a msf.BackingFile,
// just far enough to let the caller sniff the signature before
// choosing between msf.OpenPath and msf.OpenMsfzPath, both of which
// reopen the file themselves.
func probeFile(path string) (msf.BackingFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return msf.NewOSBackingFile(f), nil
}
