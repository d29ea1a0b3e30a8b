package fs

import (
	"io/fs"
	"os"
	"syscall"
)

// File type discriminators on the wire.
const (
	TypeFile      = "file"
	TypeDirectory = "directory"
	TypeSymlink   = "symlink"
	TypeOther     = "other"
)

// FileAttributes is the wire representation of a stat result.
// Timestamps are whole seconds since the Unix epoch. Target is present
// only for symlinks.
type FileAttributes struct {
	Type   string `msgpack:"type"`
	Size   uint64 `msgpack:"size"`
	Mode   uint32 `msgpack:"mode"`
	Nlinks uint32 `msgpack:"nlinks"`
	UID    uint32 `msgpack:"uid"`
	GID    uint32 `msgpack:"gid"`
	Atime  int64  `msgpack:"atime"`
	Mtime  int64  `msgpack:"mtime"`
	Ctime  int64  `msgpack:"ctime"`
	Inode  uint64 `msgpack:"inode"`
	Dev    uint64 `msgpack:"dev"`
	Target string `msgpack:"target,omitempty"`
}

// DirectoryEntry is one dir.list result row. Attrs is filled only when
// the client asked for attributes.
type DirectoryEntry struct {
	Name  string          `msgpack:"name"`
	Attrs *FileAttributes `msgpack:"attrs,omitempty"`
}

// fileTypeOf classifies a mode the way the protocol names types.
func fileTypeOf(mode fs.FileMode) string {
	switch {
	case mode.IsRegular():
		return TypeFile
	case mode.IsDir():
		return TypeDirectory
	case mode&fs.ModeSymlink != 0:
		return TypeSymlink
	default:
		return TypeOther
	}
}

// attrsFromInfo converts a FileInfo (from lstat or a directory read)
// into wire attributes. For symlinks the target is resolved with a
// separate readlink; failure to read it is not fatal, the attribute is
// simply omitted.
func attrsFromInfo(path string, info os.FileInfo) *FileAttributes {
	attrs := &FileAttributes{
		Type: fileTypeOf(info.Mode()),
		Size: uint64(info.Size()),
		Mode: uint32(info.Mode().Perm()) | sysModeBits(info.Mode()),
	}

	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		attrs.Nlinks = uint32(st.Nlink)
		attrs.UID = st.Uid
		attrs.GID = st.Gid
		attrs.Inode = st.Ino
		attrs.Dev = uint64(st.Dev)
		attrs.Atime, attrs.Mtime, attrs.Ctime = statTimes(st)
	} else {
		// Non-POSIX FileInfo; mtime is all the interface guarantees.
		attrs.Mtime = info.ModTime().Unix()
		attrs.Nlinks = 1
	}

	if attrs.Type == TypeSymlink {
		if target, err := os.Readlink(path); err == nil {
			attrs.Target = target
		}
	}
	return attrs
}

// sysModeBits recovers the setuid/setgid/sticky bits that
// fs.FileMode.Perm() drops, so clients see full POSIX mode words.
func sysModeBits(mode fs.FileMode) uint32 {
	var bits uint32
	if mode&fs.ModeSetuid != 0 {
		bits |= 0o4000
	}
	if mode&fs.ModeSetgid != 0 {
		bits |= 0o2000
	}
	if mode&fs.ModeSticky != 0 {
		bits |= 0o1000
	}
	return bits
}
