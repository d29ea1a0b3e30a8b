// Package watch implements the watcher registry: watch.add, watch.remove,
// and the event loop that turns kernel change notifications into
// server-initiated watch.event messages.
package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/tramp-rpc-server/internal/logger"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
)

// Mask bits selecting which change kinds a watcher delivers.
// Zero means everything.
const (
	MaskCreate uint32 = 1 << iota
	MaskModify
	MaskDelete
	MaskRename
	MaskAttrib
)

// Notifier accepts server-initiated events for delivery to the client.
type Notifier interface {
	Notify(event any)
}

// record is one registered watcher: its own fsnotify instance and its
// own event-loop goroutine, so a flood on one path cannot stall
// another watcher's delivery.
type record struct {
	id        uint64
	path      string
	mask      uint32
	recursive bool
	watcher   *fsnotify.Watcher
	done      chan struct{}
}

// Registry is the WatcherTable: id → record, mutex-guarded, short
// critical sections only.
type Registry struct {
	notifier Notifier

	mu      sync.Mutex
	nextID  uint64
	records map[uint64]*record

	wg sync.WaitGroup
}

// NewRegistry creates an empty watcher table.
func NewRegistry(notifier Notifier) *Registry {
	return &Registry{
		notifier: notifier,
		records:  make(map[uint64]*record),
	}
}

// AddRequest registers a watcher on a path.
type AddRequest struct {
	Path      string `msgpack:"path"`
	Mask      uint32 `msgpack:"mask"`
	Recursive bool   `msgpack:"recursive"`
}

// AddResult hands back the watcher id used in events and watch.remove.
type AddResult struct {
	ID uint64 `msgpack:"id"`
}

// Add implements watch.add. With recursive set, the existing subtree
// is registered up front and directories created later are added as
// their create events arrive.
func (r *Registry) Add(ctx context.Context, req *AddRequest) (any, *rpc.Error) {
	if req.Path == "" {
		return nil, rpc.InvalidParams("path must not be empty")
	}
	if _, err := os.Lstat(req.Path); err != nil {
		return nil, rpc.MapFSError(err, req.Path)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, rpc.Errorf(rpc.CodeWatcher, "create watcher: %v", err)
	}

	if err := w.Add(req.Path); err != nil {
		w.Close()
		return nil, rpc.Errorf(rpc.CodeWatcher, "watch %s: %v", req.Path, err)
	}
	if req.Recursive {
		if err := addSubtree(w, req.Path); err != nil {
			w.Close()
			return nil, rpc.Errorf(rpc.CodeWatcher, "watch subtree of %s: %v", req.Path, err)
		}
	}

	r.mu.Lock()
	r.nextID++
	rec := &record{
		id:        r.nextID,
		path:      req.Path,
		mask:      req.Mask,
		recursive: req.Recursive,
		watcher:   w,
		done:      make(chan struct{}),
	}
	r.records[rec.id] = rec
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(rec)

	logger.InfoCtx(ctx, "added watcher",
		logger.KeyWatcherID, rec.id,
		logger.KeyPath, req.Path,
		"recursive", req.Recursive)
	return &AddResult{ID: rec.id}, nil
}

// addSubtree registers every directory below root. inotify watches do
// not recurse on their own.
func addSubtree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Entries that vanish mid-walk are not a reason to fail
			// the whole registration.
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() && path != root {
			return w.Add(path)
		}
		return nil
	})
}

// RemoveRequest tears down a watcher by id.
type RemoveRequest struct {
	ID uint64 `msgpack:"id"`
}

// Remove implements watch.remove.
func (r *Registry) Remove(ctx context.Context, req *RemoveRequest) (any, *rpc.Error) {
	r.mu.Lock()
	rec, ok := r.records[req.ID]
	if ok {
		delete(r.records, req.ID)
	}
	r.mu.Unlock()

	if !ok {
		return nil, rpc.Errorf(rpc.CodeNotFound, "no watcher with id %d", req.ID)
	}

	rec.watcher.Close()
	<-rec.done

	logger.InfoCtx(ctx, "removed watcher", logger.KeyWatcherID, req.ID)
	return nil, nil
}

// run is one watcher's event loop. It owns translation from fsnotify
// ops to wire change kinds, mask filtering, and recursive extension.
func (r *Registry) run(rec *record) {
	defer r.wg.Done()
	defer close(rec.done)

	for {
		select {
		case ev, ok := <-rec.watcher.Events:
			if !ok {
				return
			}
			r.handleEvent(rec, ev)
		case err, ok := <-rec.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost in the kernel queue. Tell the
				// client; the watcher itself stays valid.
				r.notifier.Notify(rpc.NewWatchOverflowEvent(rec.id))
				continue
			}
			logger.Warn("watcher error",
				logger.KeyWatcherID, rec.id,
				logger.KeyError, err)
		}
	}
}

func (r *Registry) handleEvent(rec *record, ev fsnotify.Event) {
	change, bit := classify(ev.Op)
	if change == "" {
		return
	}

	// A new directory under a recursive watcher joins the watch set.
	// Best effort: it may already be gone.
	if rec.recursive && ev.Op.Has(fsnotify.Create) {
		if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
			_ = rec.watcher.Add(ev.Name)
		}
	}

	if rec.mask != 0 && rec.mask&bit == 0 {
		return
	}

	// fsnotify delivers a rename on the old name; the new name, when
	// it lands inside a watched directory, arrives as its own create
	// event. to_path therefore stays unset here.
	r.notifier.Notify(rpc.NewWatchEvent(rec.id, ev.Name, change))
}

// classify maps an fsnotify op to the wire change kind and mask bit.
// Ops can combine; precedence follows destructiveness.
func classify(op fsnotify.Op) (string, uint32) {
	switch {
	case op.Has(fsnotify.Remove):
		return "delete", MaskDelete
	case op.Has(fsnotify.Rename):
		return "rename", MaskRename
	case op.Has(fsnotify.Create):
		return "create", MaskCreate
	case op.Has(fsnotify.Write):
		return "modify", MaskModify
	case op.Has(fsnotify.Chmod):
		return "attrib", MaskAttrib
	default:
		return "", 0
	}
}

// Shutdown closes every watcher and waits for the event loops.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	recs := make([]*record, 0, len(r.records))
	for _, rec := range r.records {
		recs = append(recs, rec)
	}
	r.records = make(map[uint64]*record)
	r.mu.Unlock()

	for _, rec := range recs {
		rec.watcher.Close()
	}
	r.wg.Wait()
}

// Count reports the number of registered watchers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
