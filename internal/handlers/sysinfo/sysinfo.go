// Package sysinfo implements system.info: the one call a client makes
// first to learn who and where it is talking to.
package sysinfo

import (
	"context"
	"os"
	"runtime"

	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
)

// Handler answers system.info.
type Handler struct {
	// ServerVersion is the build version stamped into the binary.
	ServerVersion string
}

// Result describes the server's identity and environment.
type Result struct {
	UID           int    `msgpack:"uid"`
	GID           int    `msgpack:"gid"`
	Home          string `msgpack:"home"`
	Hostname      string `msgpack:"hostname"`
	OS            string `msgpack:"os"`
	Arch          string `msgpack:"arch"`
	ServerVersion string `msgpack:"server_version"`
}

// Info implements system.info. Hostname and home failures degrade to
// empty strings rather than failing the call — a client can work
// without either.
func (h *Handler) Info(ctx context.Context, _ *struct{}) (any, *rpc.Error) {
	hostname, _ := os.Hostname()
	home, _ := os.UserHomeDir()

	return &Result{
		UID:           os.Getuid(),
		GID:           os.Getgid(),
		Home:          home,
		Hostname:      hostname,
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		ServerVersion: h.ServerVersion,
	}, nil
}
