/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version carries build information.
package version

import (
	"fmt"
	"runtime"
)

// Version is the current version of squarewave.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/squarewave/internal/version.Version=X.Y.Z
var Version = "0.1.0-dev"

// String describes the build for version output and client names.
func String() string {
	return fmt.Sprintf("squarewave/%s (%s %s/%s)", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
