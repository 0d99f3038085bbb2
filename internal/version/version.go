/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
)

// Version is the current version of limitgate.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/limitgate/internal/version.Version=X.Y.Z
var Version = "0.1.0"

// Commit is the source revision, also set via ldflags.
var Commit = "unknown"

// String formats the version for the CLI.
func String() string {
	return fmt.Sprintf("limitgate %s (%s, %s)", Version, Commit, runtime.Version())
}
