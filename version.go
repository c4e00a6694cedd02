// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Application version string related functionality.
//
// Version comes either from -ldflags="-X main.version={ver}" injection or, for binaries
// built with "go install", from embedded debug.BuildInfo.

package main

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

// Value injected during build with -ldflags="-X main.version={ver}".
var (
	version string
	vInfo   = newVersionInfo(version, debug.ReadBuildInfo)
)

// versionInfo is struct that includes relevant version information.
type versionInfo struct {
	time     time.Time
	version  string
	revision string
	modified bool
}

// newVersionInfo combines injected version with VCS details from build info.
func newVersionInfo(injected string, readBuildInfo func() (*debug.BuildInfo, bool)) versionInfo {
	v := versionInfo{version: injected}

	bi, ok := readBuildInfo()
	if !ok {
		return v
	}

	if v.version == "" {
		v.version = bi.Main.Version
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			v.revision = s.Value
		case "vcs.time":
			v.time, _ = time.Parse(time.RFC3339, s.Value)
		case "vcs.modified":
			v.modified = s.Value == "true"
		}
	}

	return v
}

func (v versionInfo) String() string {
	parts := []string{v.version}
	if v.version == "" {
		parts[0] = "(devel)"
	}
	if v.revision != "" {
		rev := v.revision
		if v.modified {
			rev += "-dirty"
		}
		parts = append(parts, rev)
	}
	if !v.time.IsZero() {
		parts = append(parts, v.time.UTC().Format(time.RFC3339))
	}
	return strings.Join(parts, " ")
}

func printVersion() {
	writeVersion(os.Stderr)
}

func writeVersion(w io.Writer) {
	fmt.Fprintf(w, "vuality %s\n", vInfo)
}
