// Package frame implements the transport framing: every message travels
// as a 4-byte big-endian length followed by that many payload bytes.
//
// The reader tolerates arbitrary chunking by the transport (stdio through
// a secure-shell session delivers bytes however it pleases); a frame is
// surfaced only once fully buffered. A declared length above the
// configured maximum is unrecoverable and aborts the connection.
package frame

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/marmos91/tramp-rpc-server/pkg/bufpool"
)

// DefaultMaxFrameSize bounds a single payload. Larger declared lengths
// indicate a corrupt or hostile stream.
const DefaultMaxFrameSize = 64 << 20 // 64 MiB

// ErrFrameTooLarge is returned when a frame header declares a length
// above the reader's maximum. The connection must be torn down: the
// stream position is no longer trustworthy.
type ErrFrameTooLarge struct {
	Length uint32
	Max    uint32
}

func (e *ErrFrameTooLarge) Error() string {
	return fmt.Sprintf("frame length %d exceeds maximum %d", e.Length, e.Max)
}

// Reader decodes length-prefixed frames from a byte stream.
type Reader struct {
	r   *bufio.Reader
	max uint32
}

// NewReader creates a frame reader. maxSize of 0 selects
// DefaultMaxFrameSize.
func NewReader(r io.Reader, maxSize uint32) *Reader {
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Reader{
		r:   bufio.NewReaderSize(r, 64<<10),
		max: maxSize,
	}
}

// Next reads one complete frame payload. The returned buffer comes from
// the buffer pool; the caller must release it with bufpool.Put after
// processing. Returns io.EOF on a clean end of stream and
// io.ErrUnexpectedEOF when the stream dies mid-frame.
func (r *Reader) Next() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > r.max {
		return nil, &ErrFrameTooLarge{Length: length, Max: r.max}
	}

	payload := bufpool.GetUint32(length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		bufpool.Put(payload)
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// Writer encodes length-prefixed frames onto a byte stream.
//
// Writer is not safe for concurrent use; the server funnels all frames
// through a single writer goroutine so header and payload of one frame
// can never interleave with another.
type Writer struct {
	w   *bufio.Writer
	max uint32
}

// NewWriter creates a frame writer. maxSize of 0 selects
// DefaultMaxFrameSize.
func NewWriter(w io.Writer, maxSize uint32) *Writer {
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Writer{
		w:   bufio.NewWriterSize(w, 64<<10),
		max: maxSize,
	}
}

// Write emits one frame and flushes it to the transport.
func (w *Writer) Write(payload []byte) error {
	if uint32(len(payload)) > w.max {
		return &ErrFrameTooLarge{Length: uint32(len(payload)), Max: w.max}
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return w.w.Flush()
}
