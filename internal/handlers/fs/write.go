package fs

import (
	"context"
	"io/fs"
	"os"

	"github.com/marmos91/tramp-rpc-server/internal/logger"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
)

// WriteRequest writes bytes to a file, truncating or appending.
type WriteRequest struct {
	Path    string  `msgpack:"path"`
	Content []byte  `msgpack:"content"`
	Append  bool    `msgpack:"append"`
	Mode    *uint32 `msgpack:"mode"`
}

// WriteResult reports how many bytes landed.
type WriteResult struct {
	BytesWritten uint64 `msgpack:"bytes_written"`
}

// Write implements file.write. A supplied mode applies at creation time
// (before any bytes are written) subject to the process umask; on an
// existing file it is left untouched. No locking is added beyond what
// the filesystem itself provides.
func (h *Handler) Write(ctx context.Context, req *WriteRequest) (any, *rpc.Error) {
	if err := validatePath(req.Path); err != nil {
		return nil, err
	}

	flags := os.O_WRONLY | os.O_CREATE
	if req.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	perm := fs.FileMode(0o666)
	if req.Mode != nil {
		perm = fs.FileMode(*req.Mode).Perm()
	}

	f, err := os.OpenFile(req.Path, flags, perm)
	if err != nil {
		return nil, rpc.MapFSError(err, req.Path)
	}

	n, err := f.Write(req.Content)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, rpc.MapFSError(err, req.Path)
	}

	logger.DebugCtx(ctx, "wrote file",
		logger.KeyPath, req.Path,
		logger.KeySize, n,
		"append", req.Append)

	return &WriteResult{BytesWritten: uint64(n)}, nil
}
