package fs

import (
	"context"
	"os"

	"github.com/marmos91/tramp-rpc-server/internal/logger"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
)

// RenameRequest atomically renames a path within one filesystem.
type RenameRequest struct {
	From      string `msgpack:"from"`
	To        string `msgpack:"to"`
	Overwrite bool   `msgpack:"overwrite"`
}

// Rename implements file.rename. A rename across devices fails with
// EXDEV rather than degrading to a copy: the client asked for an atomic
// rename and a copy is not one. file.copy plus file.delete is the
// explicit spelling of the fallback.
func (h *Handler) Rename(ctx context.Context, req *RenameRequest) (any, *rpc.Error) {
	if err := validatePath(req.From); err != nil {
		return nil, err
	}
	if err := validatePath(req.To); err != nil {
		return nil, err
	}

	if !req.Overwrite {
		// rename(2) silently replaces the destination; honor the
		// overwrite flag with an existence probe. The window between
		// probe and rename is the filesystem's to arbitrate.
		if _, err := os.Lstat(req.To); err == nil {
			return nil, rpc.MapFSError(os.ErrExist, req.To)
		}
	}

	if err := os.Rename(req.From, req.To); err != nil {
		return nil, rpc.MapFSError(err, req.From)
	}

	logger.InfoCtx(ctx, "renamed",
		logger.KeyFromPath, req.From,
		logger.KeyToPath, req.To)
	return nil, nil
}

// SymlinkRequest creates a symbolic link pointing at target.
type SymlinkRequest struct {
	Target string `msgpack:"target"`
	Link   string `msgpack:"link"`
}

// Symlink implements file.symlink. The target is stored verbatim; it
// need not exist.
func (h *Handler) Symlink(ctx context.Context, req *SymlinkRequest) (any, *rpc.Error) {
	if req.Target == "" {
		return nil, rpc.InvalidParams("target must not be empty")
	}
	if err := validatePath(req.Link); err != nil {
		return nil, err
	}

	if err := os.Symlink(req.Target, req.Link); err != nil {
		return nil, rpc.MapFSError(err, req.Link)
	}

	logger.InfoCtx(ctx, "created symlink",
		logger.KeyPath, req.Link,
		"target", req.Target)
	return nil, nil
}
