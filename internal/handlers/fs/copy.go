package fs

import (
	"context"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/marmos91/tramp-rpc-server/internal/logger"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
)

// CopyRequest copies a regular file.
type CopyRequest struct {
	From      string `msgpack:"from"`
	To        string `msgpack:"to"`
	Overwrite bool   `msgpack:"overwrite"`
	Preserve  bool   `msgpack:"preserve"`
}

// Copy implements file.copy. With preserve set, mode and mtime are
// carried over and ownership is restored best effort — an unprivileged
// server cannot chown and that must not fail the copy.
func (h *Handler) Copy(ctx context.Context, req *CopyRequest) (any, *rpc.Error) {
	if err := validatePath(req.From); err != nil {
		return nil, err
	}
	if err := validatePath(req.To); err != nil {
		return nil, err
	}

	src, err := os.Open(req.From)
	if err != nil {
		return nil, rpc.MapFSError(err, req.From)
	}
	defer src.Close()

	srcInfo, err := src.Stat()
	if err != nil {
		return nil, rpc.MapFSError(err, req.From)
	}
	if srcInfo.IsDir() {
		return nil, rpc.MapFSError(errIsDir(req.From), req.From)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !req.Overwrite {
		flags |= os.O_EXCL
	}
	dst, err := os.OpenFile(req.To, flags, srcInfo.Mode().Perm())
	if err != nil {
		return nil, rpc.MapFSError(err, req.To)
	}

	_, copyErr := io.Copy(dst, src)
	if closeErr := dst.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		// A half-written destination is worse than no destination.
		os.Remove(req.To)
		return nil, rpc.MapFSError(copyErr, req.To)
	}

	if req.Preserve {
		h.preserveMetadata(ctx, req.From, req.To, srcInfo)
	}

	logger.InfoCtx(ctx, "copied file",
		logger.KeyFromPath, req.From,
		logger.KeyToPath, req.To,
		logger.KeySize, srcInfo.Size())
	return nil, nil
}

// preserveMetadata restores mode, timestamps, and (best effort) owner
// on the destination. Mode and timestamp failures are logged as
// warnings; chown failing as non-root is the expected case and is only
// logged at debug level.
func (h *Handler) preserveMetadata(ctx context.Context, from, to string, srcInfo os.FileInfo) {
	if err := os.Chmod(to, srcInfo.Mode()); err != nil {
		logger.WarnCtx(ctx, "copy: failed to preserve mode", logger.KeyPath, to, logger.KeyError, err)
	}

	if st, ok := srcInfo.Sys().(*syscall.Stat_t); ok {
		atime, mtime, _ := statTimes(st)
		if err := os.Chtimes(to, time.Unix(atime, 0), time.Unix(mtime, 0)); err != nil {
			logger.WarnCtx(ctx, "copy: failed to preserve times", logger.KeyPath, to, logger.KeyError, err)
		}
		if err := os.Chown(to, int(st.Uid), int(st.Gid)); err != nil {
			logger.DebugCtx(ctx, "copy: could not preserve owner", logger.KeyPath, to, logger.KeyError, err)
		}
	}
}
