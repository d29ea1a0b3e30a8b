package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tramp-rpc-server/internal/handlers/fs"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
)

func newHandler() *fs.Handler {
	return &fs.Handler{}
}

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

// Stat on an absent path is a null result, not an error.
func TestStat_Absent(t *testing.T) {
	h := newHandler()
	result, rpcErr := h.Stat(context.Background(), &fs.StatRequest{
		Path: filepath.Join(t.TempDir(), "nonexistent"),
	})
	require.Nil(t, rpcErr)
	assert.Nil(t, result)
}

func TestStat_File(t *testing.T) {
	h := newHandler()
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	writeFile(t, path, []byte("12345"))

	result, rpcErr := h.Stat(context.Background(), &fs.StatRequest{Path: path})
	require.Nil(t, rpcErr)

	attrs, ok := result.(*fs.FileAttributes)
	require.True(t, ok)
	assert.Equal(t, fs.TypeFile, attrs.Type)
	assert.EqualValues(t, 5, attrs.Size)
	assert.NotZero(t, attrs.Inode)
	assert.NotZero(t, attrs.Mtime)
	assert.Empty(t, attrs.Target)
}

func TestStat_Symlink(t *testing.T) {
	h := newHandler()
	dir := t.TempDir()
	link := filepath.Join(dir, "lnk")
	require.NoError(t, os.Symlink("/nonexistent/target", link))

	result, rpcErr := h.Stat(context.Background(), &fs.StatRequest{Path: link})
	require.Nil(t, rpcErr)

	attrs := result.(*fs.FileAttributes)
	assert.Equal(t, fs.TypeSymlink, attrs.Type)
	assert.Equal(t, "/nonexistent/target", attrs.Target)
}

func TestExists(t *testing.T) {
	h := newHandler()
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	writeFile(t, path, nil)

	result, rpcErr := h.Exists(context.Background(), &fs.ExistsRequest{Path: path})
	require.Nil(t, rpcErr)
	assert.Equal(t, true, result)

	result, rpcErr = h.Exists(context.Background(), &fs.ExistsRequest{Path: path + ".gone"})
	require.Nil(t, rpcErr)
	assert.Equal(t, false, result)
}

// Write-then-read is the fundamental roundtrip: bytes out equal bytes
// in, classified utf-8 for text.
func TestWriteRead_Roundtrip(t *testing.T) {
	h := newHandler()
	path := filepath.Join(t.TempDir(), "x")

	wres, rpcErr := h.Write(context.Background(), &fs.WriteRequest{
		Path:    path,
		Content: []byte("hello world"),
	})
	require.Nil(t, rpcErr)
	assert.EqualValues(t, 11, wres.(*fs.WriteResult).BytesWritten)

	rres, rpcErr := h.Read(context.Background(), &fs.ReadRequest{Path: path})
	require.Nil(t, rpcErr)

	read := rres.(*fs.ReadResult)
	assert.Equal(t, "hello world", read.Content)
	assert.Equal(t, "utf-8", read.Encoding)
	assert.EqualValues(t, 11, read.Size)
}

func TestWriteRead_BinaryRoundtrip(t *testing.T) {
	h := newHandler()
	path := filepath.Join(t.TempDir(), "bin")
	data := []byte{0xff, 0xfe, 0x00, 0x01}

	_, rpcErr := h.Write(context.Background(), &fs.WriteRequest{Path: path, Content: data})
	require.Nil(t, rpcErr)

	rres, rpcErr := h.Read(context.Background(), &fs.ReadRequest{Path: path})
	require.Nil(t, rpcErr)

	read := rres.(*fs.ReadResult)
	assert.Equal(t, "binary", read.Encoding)
	assert.Equal(t, data, read.Content)
}

func TestWrite_Append(t *testing.T) {
	h := newHandler()
	path := filepath.Join(t.TempDir(), "log")

	for _, chunk := range []string{"one", "two"} {
		_, rpcErr := h.Write(context.Background(), &fs.WriteRequest{
			Path:    path,
			Content: []byte(chunk),
			Append:  true,
		})
		require.Nil(t, rpcErr)
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "onetwo", string(data))
}

func TestWrite_ModeAtCreation(t *testing.T) {
	h := newHandler()
	path := filepath.Join(t.TempDir(), "script")
	mode := uint32(0o700)

	_, rpcErr := h.Write(context.Background(), &fs.WriteRequest{
		Path:    path,
		Content: []byte("#!/bin/sh\n"),
		Mode:    &mode,
	})
	require.Nil(t, rpcErr)

	info, err := os.Stat(path)
	require.NoError(t, err)
	// The umask may clear group/other bits, never add them.
	assert.Zero(t, info.Mode().Perm()&^0o700)
}

func TestRead_OffsetLength(t *testing.T) {
	h := newHandler()
	path := filepath.Join(t.TempDir(), "x")
	writeFile(t, path, []byte("0123456789"))

	offset, length := int64(2), int64(4)
	rres, rpcErr := h.Read(context.Background(), &fs.ReadRequest{
		Path:   path,
		Offset: &offset,
		Length: &length,
	})
	require.Nil(t, rpcErr)

	read := rres.(*fs.ReadResult)
	assert.Equal(t, "2345", read.Content)
	assert.EqualValues(t, 4, read.Size)
}

func TestRead_LengthPastEOF(t *testing.T) {
	h := newHandler()
	path := filepath.Join(t.TempDir(), "x")
	writeFile(t, path, []byte("abc"))

	length := int64(100)
	rres, rpcErr := h.Read(context.Background(), &fs.ReadRequest{Path: path, Length: &length})
	require.Nil(t, rpcErr)
	assert.Equal(t, "abc", rres.(*fs.ReadResult).Content)
}

func TestRead_Directory(t *testing.T) {
	h := newHandler()
	_, rpcErr := h.Read(context.Background(), &fs.ReadRequest{Path: t.TempDir()})
	require.NotNil(t, rpcErr)
	assert.Equal(t, rpc.CodeIsADirectory, rpcErr.Code)
}

func TestRead_NotFound(t *testing.T) {
	h := newHandler()
	_, rpcErr := h.Read(context.Background(), &fs.ReadRequest{
		Path: filepath.Join(t.TempDir(), "gone"),
	})
	require.NotNil(t, rpcErr)
	assert.Equal(t, rpc.CodeNotFound, rpcErr.Code)
}

func TestDelete(t *testing.T) {
	h := newHandler()
	path := filepath.Join(t.TempDir(), "f")
	writeFile(t, path, nil)

	_, rpcErr := h.Delete(context.Background(), &fs.DeleteRequest{Path: path})
	require.Nil(t, rpcErr)
	assert.NoFileExists(t, path)
}

func TestDelete_RefusesDirectory(t *testing.T) {
	h := newHandler()
	dir := t.TempDir()

	_, rpcErr := h.Delete(context.Background(), &fs.DeleteRequest{Path: dir})
	require.NotNil(t, rpcErr)
	assert.Equal(t, rpc.CodeIsADirectory, rpcErr.Code)
	assert.DirExists(t, dir)
}

func TestDelete_NotFound(t *testing.T) {
	h := newHandler()
	_, rpcErr := h.Delete(context.Background(), &fs.DeleteRequest{
		Path: filepath.Join(t.TempDir(), "gone"),
	})
	require.NotNil(t, rpcErr)
	assert.Equal(t, rpc.CodeNotFound, rpcErr.Code)
}

func TestRename(t *testing.T) {
	h := newHandler()
	dir := t.TempDir()
	from := filepath.Join(dir, "a")
	to := filepath.Join(dir, "b")
	writeFile(t, from, []byte("data"))

	_, rpcErr := h.Rename(context.Background(), &fs.RenameRequest{From: from, To: to})
	require.Nil(t, rpcErr)
	assert.NoFileExists(t, from)
	assert.FileExists(t, to)
}

func TestRename_NoOverwrite(t *testing.T) {
	h := newHandler()
	dir := t.TempDir()
	from := filepath.Join(dir, "a")
	to := filepath.Join(dir, "b")
	writeFile(t, from, []byte("new"))
	writeFile(t, to, []byte("old"))

	_, rpcErr := h.Rename(context.Background(), &fs.RenameRequest{From: from, To: to})
	require.NotNil(t, rpcErr)
	assert.Equal(t, rpc.CodeAlreadyExists, rpcErr.Code)

	data, err := os.ReadFile(to)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestRename_Overwrite(t *testing.T) {
	h := newHandler()
	dir := t.TempDir()
	from := filepath.Join(dir, "a")
	to := filepath.Join(dir, "b")
	writeFile(t, from, []byte("new"))
	writeFile(t, to, []byte("old"))

	_, rpcErr := h.Rename(context.Background(), &fs.RenameRequest{From: from, To: to, Overwrite: true})
	require.Nil(t, rpcErr)

	data, err := os.ReadFile(to)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestChmod(t *testing.T) {
	h := newHandler()
	path := filepath.Join(t.TempDir(), "f")
	writeFile(t, path, nil)

	_, rpcErr := h.Chmod(context.Background(), &fs.ChmodRequest{Path: path, Mode: 0o640})
	require.Nil(t, rpcErr)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 0o640, info.Mode().Perm())
}

func TestSymlinkReadlink(t *testing.T) {
	h := newHandler()
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	link := filepath.Join(dir, "link")
	writeFile(t, target, []byte("x"))

	_, rpcErr := h.Symlink(context.Background(), &fs.SymlinkRequest{Target: target, Link: link})
	require.Nil(t, rpcErr)

	result, rpcErr := h.Readlink(context.Background(), &fs.ReadlinkRequest{Path: link})
	require.Nil(t, rpcErr)
	assert.Equal(t, target, result.(*fs.ReadlinkResult).Target)
}

func TestSymlink_Exists(t *testing.T) {
	h := newHandler()
	dir := t.TempDir()
	link := filepath.Join(dir, "link")
	writeFile(t, link, nil)

	_, rpcErr := h.Symlink(context.Background(), &fs.SymlinkRequest{Target: "/t", Link: link})
	require.NotNil(t, rpcErr)
	assert.Equal(t, rpc.CodeAlreadyExists, rpcErr.Code)
}

func TestReadlink_NotASymlink(t *testing.T) {
	h := newHandler()
	path := filepath.Join(t.TempDir(), "plain")
	writeFile(t, path, nil)

	_, rpcErr := h.Readlink(context.Background(), &fs.ReadlinkRequest{Path: path})
	require.NotNil(t, rpcErr)
	assert.Equal(t, "EINVAL", rpcErr.Data["errno"])
}

func TestCopy(t *testing.T) {
	h := newHandler()
	dir := t.TempDir()
	from := filepath.Join(dir, "src")
	to := filepath.Join(dir, "dst")
	writeFile(t, from, []byte("payload"))
	require.NoError(t, os.Chmod(from, 0o600))

	_, rpcErr := h.Copy(context.Background(), &fs.CopyRequest{From: from, To: to, Preserve: true})
	require.Nil(t, rpcErr)

	data, err := os.ReadFile(to)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	info, err := os.Stat(to)
	require.NoError(t, err)
	assert.EqualValues(t, 0o600, info.Mode().Perm())
}

func TestCopy_NoOverwrite(t *testing.T) {
	h := newHandler()
	dir := t.TempDir()
	from := filepath.Join(dir, "src")
	to := filepath.Join(dir, "dst")
	writeFile(t, from, []byte("new"))
	writeFile(t, to, []byte("old"))

	_, rpcErr := h.Copy(context.Background(), &fs.CopyRequest{From: from, To: to})
	require.NotNil(t, rpcErr)
	assert.Equal(t, rpc.CodeAlreadyExists, rpcErr.Code)
}

// The dir.create / file.write / dir.list / dir.remove lifecycle.
func TestDirLifecycle(t *testing.T) {
	h := newHandler()
	base := t.TempDir()
	dir := filepath.Join(base, "d")
	ctx := context.Background()

	_, rpcErr := h.DirCreate(ctx, &fs.DirCreateRequest{Path: dir})
	require.Nil(t, rpcErr)

	_, rpcErr = h.Write(ctx, &fs.WriteRequest{Path: filepath.Join(dir, "a"), Content: []byte("a")})
	require.Nil(t, rpcErr)

	result, rpcErr := h.DirList(ctx, &fs.DirListRequest{Path: dir, IncludeHidden: true})
	require.Nil(t, rpcErr)
	entries := result.([]fs.DirectoryEntry)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Name)
	assert.Nil(t, entries[0].Attrs, "attrs only on request")

	_, rpcErr = h.DirRemove(ctx, &fs.DirRemoveRequest{Path: dir, Recursive: true})
	require.Nil(t, rpcErr)

	stat, rpcErr := h.Stat(ctx, &fs.StatRequest{Path: dir})
	require.Nil(t, rpcErr)
	assert.Nil(t, stat)
}

// Hidden filtering must be exactly "drop names starting with a dot".
func TestDirList_HiddenFiltering(t *testing.T) {
	h := newHandler()
	dir := t.TempDir()
	for _, name := range []string{"visible", ".hidden", "also.visible", ".also.hidden"} {
		writeFile(t, filepath.Join(dir, name), nil)
	}
	ctx := context.Background()

	all, rpcErr := h.DirList(ctx, &fs.DirListRequest{Path: dir, IncludeHidden: true})
	require.Nil(t, rpcErr)
	some, rpcErr := h.DirList(ctx, &fs.DirListRequest{Path: dir, IncludeHidden: false})
	require.Nil(t, rpcErr)

	names := func(entries []fs.DirectoryEntry) []string {
		var out []string
		for _, e := range entries {
			out = append(out, e.Name)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"visible", ".hidden", "also.visible", ".also.hidden"}, names(all.([]fs.DirectoryEntry)))
	assert.ElementsMatch(t, []string{"visible", "also.visible"}, names(some.([]fs.DirectoryEntry)))
}

func TestDirList_WithAttrs(t *testing.T) {
	h := newHandler()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "f"), []byte("abc"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	result, rpcErr := h.DirList(context.Background(), &fs.DirListRequest{
		Path:          dir,
		IncludeAttrs:  true,
		IncludeHidden: true,
	})
	require.Nil(t, rpcErr)

	byName := map[string]*fs.FileAttributes{}
	for _, e := range result.([]fs.DirectoryEntry) {
		byName[e.Name] = e.Attrs
	}
	require.NotNil(t, byName["f"])
	assert.Equal(t, fs.TypeFile, byName["f"].Type)
	assert.EqualValues(t, 3, byName["f"].Size)
	require.NotNil(t, byName["sub"])
	assert.Equal(t, fs.TypeDirectory, byName["sub"].Type)
}

func TestDirList_NotADirectory(t *testing.T) {
	h := newHandler()
	path := filepath.Join(t.TempDir(), "f")
	writeFile(t, path, nil)

	_, rpcErr := h.DirList(context.Background(), &fs.DirListRequest{Path: path})
	require.NotNil(t, rpcErr)
	assert.Equal(t, rpc.CodeNotADirectory, rpcErr.Code)
}

func TestDirCreate_Parents(t *testing.T) {
	h := newHandler()
	deep := filepath.Join(t.TempDir(), "a", "b", "c")

	_, rpcErr := h.DirCreate(context.Background(), &fs.DirCreateRequest{Path: deep, Parents: true})
	require.Nil(t, rpcErr)
	assert.DirExists(t, deep)
}

func TestDirCreate_Exists(t *testing.T) {
	h := newHandler()
	dir := t.TempDir()

	_, rpcErr := h.DirCreate(context.Background(), &fs.DirCreateRequest{Path: dir})
	require.NotNil(t, rpcErr)
	assert.Equal(t, rpc.CodeAlreadyExists, rpcErr.Code)

	// mkdir -p semantics: an existing directory is success.
	_, rpcErr = h.DirCreate(context.Background(), &fs.DirCreateRequest{Path: dir, Parents: true})
	assert.Nil(t, rpcErr)
}

// Non-recursive removal of a non-empty directory must fail without
// touching any entry.
func TestDirRemove_NonEmptyNonRecursive(t *testing.T) {
	h := newHandler()
	dir := t.TempDir()
	inner := filepath.Join(dir, "keep")
	writeFile(t, inner, []byte("x"))

	_, rpcErr := h.DirRemove(context.Background(), &fs.DirRemoveRequest{Path: dir})
	require.NotNil(t, rpcErr)
	assert.Equal(t, "ENOTEMPTY", rpcErr.Data["errno"])
	assert.FileExists(t, inner, "no partial deletion")
}

func TestDirRemove_NotFound(t *testing.T) {
	h := newHandler()
	_, rpcErr := h.DirRemove(context.Background(), &fs.DirRemoveRequest{
		Path:      filepath.Join(t.TempDir(), "gone"),
		Recursive: true,
	})
	require.NotNil(t, rpcErr)
	assert.Equal(t, rpc.CodeNotFound, rpcErr.Code)
}

func TestEmptyPathRejected(t *testing.T) {
	h := newHandler()
	_, rpcErr := h.Stat(context.Background(), &fs.StatRequest{})
	require.NotNil(t, rpcErr)
	assert.Equal(t, rpc.CodeInvalidParams, rpcErr.Code)
}
