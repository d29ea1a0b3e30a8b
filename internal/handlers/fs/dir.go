package fs

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/tramp-rpc-server/internal/logger"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
)

// DirListRequest enumerates a directory.
type DirListRequest struct {
	Path          string `msgpack:"path"`
	IncludeAttrs  bool   `msgpack:"include_attrs"`
	IncludeHidden bool   `msgpack:"include_hidden"`
}

// DirList implements dir.list. Entries come back in the filesystem's
// natural enumeration order — sorting is the client's concern. With
// include_attrs, an entry that vanishes between enumeration and stat
// still appears, just without attributes.
func (h *Handler) DirList(ctx context.Context, req *DirListRequest) (any, *rpc.Error) {
	if err := validatePath(req.Path); err != nil {
		return nil, err
	}

	f, err := os.Open(req.Path)
	if err != nil {
		return nil, rpc.MapFSError(err, req.Path)
	}
	defer f.Close()

	// ReadDir on the handle keeps the kernel's ordering; the package
	// level os.ReadDir would sort.
	dirEntries, err := f.ReadDir(-1)
	if err != nil {
		return nil, rpc.MapFSError(err, req.Path)
	}

	entries := make([]DirectoryEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if !req.IncludeHidden && strings.HasPrefix(name, ".") {
			continue
		}

		entry := DirectoryEntry{Name: name}
		if req.IncludeAttrs {
			full := filepath.Join(req.Path, name)
			if info, err := os.Lstat(full); err == nil {
				entry.Attrs = attrsFromInfo(full, info)
			}
		}
		entries = append(entries, entry)
	}

	logger.DebugCtx(ctx, "listed directory",
		logger.KeyPath, req.Path,
		"entries", len(entries))
	return entries, nil
}

// DirCreateRequest creates a directory.
type DirCreateRequest struct {
	Path    string  `msgpack:"path"`
	Parents bool    `msgpack:"parents"`
	Mode    *uint32 `msgpack:"mode"`
}

// DirCreate implements dir.create. With parents set the call follows
// mkdir -p semantics: missing ancestors are created and an existing
// directory is success, not already-exists.
func (h *Handler) DirCreate(ctx context.Context, req *DirCreateRequest) (any, *rpc.Error) {
	if err := validatePath(req.Path); err != nil {
		return nil, err
	}

	perm := fs.FileMode(0o777)
	if req.Mode != nil {
		perm = fs.FileMode(*req.Mode).Perm()
	}

	var err error
	if req.Parents {
		err = os.MkdirAll(req.Path, perm)
	} else {
		err = os.Mkdir(req.Path, perm)
	}
	if err != nil {
		return nil, rpc.MapFSError(err, req.Path)
	}

	logger.InfoCtx(ctx, "created directory",
		logger.KeyPath, req.Path,
		"parents", req.Parents)
	return nil, nil
}
