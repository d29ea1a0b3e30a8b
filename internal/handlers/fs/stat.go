package fs

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/marmos91/tramp-rpc-server/internal/logger"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
)

// StatRequest asks for the attributes of a single path.
type StatRequest struct {
	Path string `msgpack:"path"`
}

// Stat implements file.stat. The path is lstat'ed: a symlink reports
// its own attributes with the target attached, dangling or not. An
// absent path is a null result, not an error — existence probing is the
// dominant use of this call and must not pay the error path.
func (h *Handler) Stat(ctx context.Context, req *StatRequest) (any, *rpc.Error) {
	if err := validatePath(req.Path); err != nil {
		return nil, err
	}

	info, err := os.Lstat(req.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		logger.DebugCtx(ctx, "stat failed", logger.KeyPath, req.Path, logger.KeyError, err)
		return nil, rpc.MapFSError(err, req.Path)
	}
	return attrsFromInfo(req.Path, info), nil
}

// ExistsRequest asks whether a path exists.
type ExistsRequest struct {
	Path string `msgpack:"path"`
}

// Exists implements file.exists. Any error short of "definitely there"
// reports false; the call has no error surface by design.
func (h *Handler) Exists(ctx context.Context, req *ExistsRequest) (any, *rpc.Error) {
	if err := validatePath(req.Path); err != nil {
		return nil, err
	}
	_, err := os.Lstat(req.Path)
	return err == nil, nil
}

// ReadlinkRequest asks for a symlink's target.
type ReadlinkRequest struct {
	Path string `msgpack:"path"`
}

// ReadlinkResult carries the raw target string, unresolved.
type ReadlinkResult struct {
	Target string `msgpack:"target"`
}

// Readlink implements file.readlink. A path that exists but is not a
// symlink comes back as EINVAL from the kernel and surfaces with that
// errno in the error data.
func (h *Handler) Readlink(ctx context.Context, req *ReadlinkRequest) (any, *rpc.Error) {
	if err := validatePath(req.Path); err != nil {
		return nil, err
	}

	target, err := os.Readlink(req.Path)
	if err != nil {
		return nil, rpc.MapFSError(err, req.Path)
	}
	return &ReadlinkResult{Target: target}, nil
}
