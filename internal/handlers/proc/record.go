package proc

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/marmos91/tramp-rpc-server/internal/logger"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
	"github.com/marmos91/tramp-rpc-server/pkg/bufpool"
)

// State is a managed process's lifecycle position.
//
//	STARTING → RUNNING → EXITING → GONE
//
// Only RUNNING accepts write_stdin, signal, and resize_pty. EXITING
// covers the window after the output drain has finished, while the
// reaper collects the exit status and emits the exit notification;
// GONE means the exit notification is out and the pid is free.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateExiting
	StateGone
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExiting:
		return "exiting"
	case StateGone:
		return "gone"
	default:
		return "unknown"
	}
}

// Process is one managed child. The OS pid doubles as the protocol
// handle. Exactly one of ptmx (PTY mode) or the pipe trio is live.
type Process struct {
	PID int

	cmd   *exec.Cmd
	state atomic.Int32

	// PTY mode: the retained master side.
	ptmx *os.File

	// Pipe mode: stdin sink; stdout/stderr are owned by the drainers.
	stdin io.WriteCloser

	// stdinMu serializes write_stdin against the close flag.
	stdinMu     sync.Mutex
	stdinClosed bool

	// drainers tracks the output pump goroutines; the reaper waits on
	// it so every fragment precedes the exit notification.
	drainers sync.WaitGroup

	// done closes when the reaper has finished: exit status recorded,
	// exit notification emitted, record removed from the table.
	done     chan struct{}
	exitCode int
	exitSig  string
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	return State(p.state.Load())
}

func (p *Process) setState(s State) {
	p.state.Store(int32(s))
}

// requireRunning gates the operations only a live process accepts.
func (p *Process) requireRunning() *rpc.Error {
	if p.State() != StateRunning {
		return rpc.NoSuchProcess(p.PID)
	}
	return nil
}

// writeStdin delivers bytes to the child's input. In PTY mode the
// bytes go to the master (the kernel echoes and line-disciplines them);
// closing a PTY's input is meaningless and ignored.
func (p *Process) writeStdin(data []byte, closeAfter bool) error {
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()

	if p.ptmx != nil {
		_, err := p.ptmx.Write(data)
		return err
	}

	if p.stdinClosed {
		return io.ErrClosedPipe
	}
	if len(data) > 0 {
		if _, err := p.stdin.Write(data); err != nil {
			return err
		}
	}
	if closeAfter {
		p.stdinClosed = true
		return p.stdin.Close()
	}
	return nil
}

// drain pumps one stream into process.output notifications in
// fragments of at most fragmentSize. Fragment boundaries are wherever
// the reads landed; they mean nothing. Runs until the stream dies,
// which for a PTY master is EIO at child exit.
func drain(pid int, stream string, r io.Reader, fragmentSize int, notify func(any)) {
	buf := bufpool.Get(fragmentSize)
	defer bufpool.Put(buf)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			notify(rpc.NewProcessOutputEvent(pid, stream, data))
		}
		if err != nil {
			if err != io.EOF {
				logger.Debug("output drain ended",
					logger.KeyPID, pid,
					logger.KeyStream, stream,
					logger.KeyError, err)
			}
			return
		}
	}
}
