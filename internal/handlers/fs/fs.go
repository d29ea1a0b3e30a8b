// Package fs implements the file.* and dir.* operations.
//
// Handlers are stateless and re-entrant: each call touches only the
// kernel's view of the filesystem, never shared server state. Paths are
// used exactly as the client sent them — no tilde expansion, no
// environment substitution, no normalization. Relative paths resolve
// against the working directory the server started in.
package fs

import (
	"os"
	"syscall"

	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
)

// Handler carries the handful of knobs filesystem operations need.
// The zero value is usable.
type Handler struct {
	// DefaultLocaleHint seeds the output encoder when file.read carries
	// no locale_hint of its own.
	DefaultLocaleHint string
}

// validatePath rejects the one path no syscall can make sense of.
func validatePath(path string) *rpc.Error {
	if path == "" {
		return rpc.InvalidParams("path must not be empty")
	}
	return nil
}

// errIsDir builds the EISDIR a handler needs when it catches a
// directory before the kernel would have.
func errIsDir(path string) error {
	return &os.PathError{Op: "read", Path: path, Err: syscall.EISDIR}
}
