package fs

import (
	"context"
	"os"

	"github.com/marmos91/tramp-rpc-server/internal/logger"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
)

// DeleteRequest removes a single non-directory path.
type DeleteRequest struct {
	Path string `msgpack:"path"`
}

// Delete implements file.delete. Directories are refused — dir.remove
// is the operation for those, and conflating the two is how recursive
// deletes happen by accident.
func (h *Handler) Delete(ctx context.Context, req *DeleteRequest) (any, *rpc.Error) {
	if err := validatePath(req.Path); err != nil {
		return nil, err
	}

	info, err := os.Lstat(req.Path)
	if err != nil {
		return nil, rpc.MapFSError(err, req.Path)
	}
	if info.IsDir() {
		return nil, rpc.MapFSError(errIsDir(req.Path), req.Path)
	}

	if err := os.Remove(req.Path); err != nil {
		return nil, rpc.MapFSError(err, req.Path)
	}

	logger.InfoCtx(ctx, "deleted file", logger.KeyPath, req.Path)
	return nil, nil
}

// DirRemoveRequest removes a directory, optionally with its contents.
type DirRemoveRequest struct {
	Path      string `msgpack:"path"`
	Recursive bool   `msgpack:"recursive"`
}

// DirRemove implements dir.remove. Non-recursive removal of a non-empty
// directory fails atomically — the kernel refuses before touching any
// entry, so there is no partial deletion to clean up.
func (h *Handler) DirRemove(ctx context.Context, req *DirRemoveRequest) (any, *rpc.Error) {
	if err := validatePath(req.Path); err != nil {
		return nil, err
	}

	// RemoveAll on a missing path reports success; the protocol wants
	// not-found. Probe first.
	if _, err := os.Lstat(req.Path); err != nil {
		return nil, rpc.MapFSError(err, req.Path)
	}

	var err error
	if req.Recursive {
		err = os.RemoveAll(req.Path)
	} else {
		err = os.Remove(req.Path)
	}
	if err != nil {
		return nil, rpc.MapFSError(err, req.Path)
	}

	logger.InfoCtx(ctx, "removed directory",
		logger.KeyPath, req.Path,
		"recursive", req.Recursive)
	return nil, nil
}
