//go:build !cgo || purego

package storage

// Compiled without cgo or with the purego tag. Uses a pure Go SQLite
// implementation, so no C compiler is required and cross-compilation works.
//
// Build command:
//   CGO_ENABLED=0 go build ./...
//   go build -tags purego ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
