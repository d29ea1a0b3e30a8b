// Package bufpool provides a tiered buffer pool for message payloads.
//
// Frame payloads and process output fragments are short-lived and heavily
// size-clustered, so pooled buffers in three size classes remove most of
// the allocation traffic on the hot path. Buffers above the large class
// are allocated directly and never pooled.
//
// Usage:
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
package bufpool

import "sync"

// Buffer size classes. Small covers control messages, medium covers
// directory listings and output fragments, large covers bulk file reads.
const (
	SmallSize  = 4 << 10
	MediumSize = 64 << 10
	LargeSize  = 1 << 20
)

// Pool manages byte-slice pools organized by size class.
type Pool struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	p := &Pool{}
	p.small.New = func() any {
		buf := make([]byte, SmallSize)
		return &buf
	}
	p.medium.New = func() any {
		buf := make([]byte, MediumSize)
		return &buf
	}
	p.large.New = func() any {
		buf := make([]byte, LargeSize)
		return &buf
	}
	return p
}

// Get returns a byte slice of exactly the requested length, backed by a
// pooled buffer when the size fits a class. The caller must hand the
// slice back via Put when done.
func (p *Pool) Get(size int) []byte {
	var bufPtr *[]byte
	switch {
	case size <= SmallSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= MediumSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= LargeSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		// Oversized buffers are never pooled; holding multi-megabyte
		// slices in a sync.Pool pins memory indefinitely.
		return make([]byte, size)
	}
	return (*bufPtr)[:size]
}

// Put returns a buffer to the pool. Buffers not obtained from Get, and
// oversized ones, are left for the garbage collector.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	full := buf[:cap(buf)]
	switch cap(buf) {
	case SmallSize:
		p.small.Put(&full)
	case MediumSize:
		p.medium.Put(&full)
	case LargeSize:
		p.large.Put(&full)
	}
}

var globalPool = NewPool()

// Get returns a slice of the requested length from the global pool.
func Get(size int) []byte { return globalPool.Get(size) }

// Put returns a buffer to the global pool.
func Put(buf []byte) { globalPool.Put(buf) }

// GetUint32 is a convenience wrapper for protocols with uint32 lengths.
func GetUint32(size uint32) []byte { return globalPool.Get(int(size)) }
