package fs

import (
	"context"
	"io"
	"os"

	"github.com/marmos91/tramp-rpc-server/internal/logger"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
	"github.com/marmos91/tramp-rpc-server/internal/remotetext"
)

// ReadRequest reads a file, optionally a byte range of it.
type ReadRequest struct {
	Path       string `msgpack:"path"`
	Offset     *int64 `msgpack:"offset"`
	Length     *int64 `msgpack:"length"`
	LocaleHint string `msgpack:"locale_hint"`
}

// ReadResult carries the classified content. Content is a string for
// the textual encodings and raw bytes for "binary"; Encoding names
// which. Size is the number of bytes actually read.
type ReadResult struct {
	Content  any    `msgpack:"content"`
	Encoding string `msgpack:"encoding"`
	Size     uint64 `msgpack:"size"`
}

// Read implements file.read.
func (h *Handler) Read(ctx context.Context, req *ReadRequest) (any, *rpc.Error) {
	if err := validatePath(req.Path); err != nil {
		return nil, err
	}
	if req.Offset != nil && *req.Offset < 0 {
		return nil, rpc.InvalidParams("offset must not be negative")
	}
	if req.Length != nil && *req.Length < 0 {
		return nil, rpc.InvalidParams("length must not be negative")
	}

	f, err := os.Open(req.Path)
	if err != nil {
		return nil, rpc.MapFSError(err, req.Path)
	}
	defer f.Close()

	// Opening a directory succeeds on most platforms; reading it is
	// what fails. Catch it up front for a clean is-a-directory error.
	if info, err := f.Stat(); err == nil && info.IsDir() {
		return nil, rpc.MapFSError(errIsDir(req.Path), req.Path)
	}

	if req.Offset != nil && *req.Offset > 0 {
		if _, err := f.Seek(*req.Offset, io.SeekStart); err != nil {
			return nil, rpc.MapFSError(err, req.Path)
		}
	}

	var data []byte
	if req.Length != nil {
		data = make([]byte, *req.Length)
		n, err := io.ReadFull(f, data)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, rpc.MapFSError(err, req.Path)
		}
		data = data[:n]
	} else {
		data, err = io.ReadAll(f)
		if err != nil {
			return nil, rpc.MapFSError(err, req.Path)
		}
	}

	hint := req.LocaleHint
	if hint == "" {
		hint = h.DefaultLocaleHint
	}
	encoded := remotetext.Encode(data, hint)

	logger.DebugCtx(ctx, "read file",
		logger.KeyPath, req.Path,
		logger.KeySize, len(data),
		logger.KeyEncoding, encoded.Encoding)

	return &ReadResult{
		Content:  encoded.Payload,
		Encoding: encoded.Encoding,
		Size:     uint64(len(data)),
	}, nil
}
