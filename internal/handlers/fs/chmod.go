package fs

import (
	"context"
	"io/fs"
	"os"

	"github.com/marmos91/tramp-rpc-server/internal/logger"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
)

// ChmodRequest changes permission bits on a path.
type ChmodRequest struct {
	Path string `msgpack:"path"`
	Mode uint32 `msgpack:"mode"`
}

// Chmod implements file.chmod. The full POSIX mode word is honored,
// including setuid/setgid/sticky.
func (h *Handler) Chmod(ctx context.Context, req *ChmodRequest) (any, *rpc.Error) {
	if err := validatePath(req.Path); err != nil {
		return nil, err
	}

	mode := fs.FileMode(req.Mode).Perm()
	if req.Mode&0o4000 != 0 {
		mode |= fs.ModeSetuid
	}
	if req.Mode&0o2000 != 0 {
		mode |= fs.ModeSetgid
	}
	if req.Mode&0o1000 != 0 {
		mode |= fs.ModeSticky
	}

	if err := os.Chmod(req.Path, mode); err != nil {
		return nil, rpc.MapFSError(err, req.Path)
	}

	logger.InfoCtx(ctx, "chmod",
		logger.KeyPath, req.Path,
		logger.KeyMode, req.Mode)
	return nil, nil
}

// ChownRequest changes ownership of a path.
type ChownRequest struct {
	Path string `msgpack:"path"`
	UID  int    `msgpack:"uid"`
	GID  int    `msgpack:"gid"`
}

// Chown implements file.chown. Symlinks are changed themselves, not
// followed — matching what stat reports for them.
func (h *Handler) Chown(ctx context.Context, req *ChownRequest) (any, *rpc.Error) {
	if err := validatePath(req.Path); err != nil {
		return nil, err
	}

	if err := os.Lchown(req.Path, req.UID, req.GID); err != nil {
		return nil, rpc.MapFSError(err, req.Path)
	}

	logger.InfoCtx(ctx, "chown",
		logger.KeyPath, req.Path,
		"uid", req.UID,
		"gid", req.GID)
	return nil, nil
}
