package proc

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/marmos91/tramp-rpc-server/internal/logger"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
)

// Notifier accepts server-initiated events for delivery to the client.
// The server's outbound writer queue implements it.
type Notifier interface {
	Notify(event any)
}

// ManagerConfig tunes the async process manager.
type ManagerConfig struct {
	// FragmentSize caps one process.output notification's data.
	FragmentSize int

	// StopTimeout is the default SIGTERM→SIGKILL grace in
	// process.stop.
	StopTimeout time.Duration

	// DefaultTerm is the TERM for PTY children when the request names
	// none.
	DefaultTerm string
}

// Manager owns every process started via process.start. It is the
// ProcessTable: a mutex-guarded pid → record map with short critical
// sections — insert on start, lookup on operation, remove on reap. No
// lock is ever held across child I/O.
type Manager struct {
	cfg      ManagerConfig
	notifier Notifier

	mu    sync.Mutex
	procs map[int]*Process

	wg       sync.WaitGroup
	shutdown chan struct{}
}

// NewManager creates an empty process table.
func NewManager(cfg ManagerConfig, notifier Notifier) *Manager {
	if cfg.FragmentSize <= 0 {
		cfg.FragmentSize = 64 << 10
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	if cfg.DefaultTerm == "" {
		cfg.DefaultTerm = "dumb"
	}
	return &Manager{
		cfg:      cfg,
		notifier: notifier,
		procs:    make(map[int]*Process),
		shutdown: make(chan struct{}),
	}
}

// PTYRequest asks for a pseudo-terminal around the child.
type PTYRequest struct {
	Cols uint16 `msgpack:"cols"`
	Rows uint16 `msgpack:"rows"`
	Term string `msgpack:"term"`
}

// StartRequest launches a long-lived child.
type StartRequest struct {
	Cmd         string            `msgpack:"cmd"`
	Args        []string          `msgpack:"args"`
	Cwd         string            `msgpack:"cwd"`
	Env         map[string]string `msgpack:"env"`
	Pty         *PTYRequest       `msgpack:"pty"`
	StdinStream bool              `msgpack:"stdin_stream"`
}

// StartResult hands back the handle for all further operations.
type StartResult struct {
	PID int `msgpack:"pid"`
}

// Start implements process.start. With a pty request the child gets
// the slave side as its controlling terminal, sized from cols/rows,
// with TERM from the request; otherwise plain pipes. A drainer per
// output stream pumps fragments to the client until the child dies,
// then the reaper emits process.exit and frees the record.
func (m *Manager) Start(ctx context.Context, req *StartRequest) (any, *rpc.Error) {
	if req.Cmd == "" {
		return nil, rpc.InvalidParams("cmd must not be empty")
	}

	select {
	case <-m.shutdown:
		return nil, rpc.Internal("server is shutting down")
	default:
	}

	cmd := exec.Command(req.Cmd, req.Args...)
	cmd.Dir = req.Cwd
	cmd.Env = overlayEnv(req.Env)

	p := &Process{done: make(chan struct{})}
	p.setState(StateStarting)

	var startErr error
	if req.Pty != nil {
		startErr = m.startWithPTY(cmd, req, p)
	} else {
		startErr = m.startWithPipes(cmd, req, p)
	}
	if startErr != nil {
		return nil, rpc.Errorf(rpc.CodeProcessFailure, "spawn %s: %v", req.Cmd, startErr)
	}

	p.cmd = cmd
	p.PID = cmd.Process.Pid
	p.setState(StateRunning)

	m.mu.Lock()
	m.procs[p.PID] = p
	m.mu.Unlock()

	logger.InfoCtx(ctx, "started process",
		logger.KeyCmd, req.Cmd,
		logger.KeyPID, p.PID,
		"pty", req.Pty != nil)

	m.wg.Add(1)
	go m.reap(p)

	return &StartResult{PID: p.PID}, nil
}

// startWithPTY connects the child to a fresh pseudo-terminal. The
// master stays with the server for I/O and resize.
func (m *Manager) startWithPTY(cmd *exec.Cmd, req *StartRequest, p *Process) error {
	term := req.Pty.Term
	if term == "" {
		term = m.cfg.DefaultTerm
	}
	env := cmd.Env
	if env == nil {
		env = os.Environ()
	}
	cmd.Env = append(env, "TERM="+term)

	size := &pty.Winsize{Cols: req.Pty.Cols, Rows: req.Pty.Rows}
	ptmx, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return err
	}
	p.ptmx = ptmx

	p.drainers.Add(1)
	go func() {
		defer p.drainers.Done()
		drain(cmd.Process.Pid, "pty", ptmx, m.cfg.FragmentSize, m.notifier.Notify)
	}()
	return nil
}

// startWithPipes wires ordinary pipes. The child gets its own process
// group so stop signals reach the whole tree.
func (m *Manager) startWithPipes(cmd *exec.Cmd, req *StartRequest, p *Process) error {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	p.stdin = stdin
	if !req.StdinStream {
		// No streaming input was requested; hand the child EOF now so
		// cat-like children terminate instead of hanging.
		p.stdinClosed = true
		_ = stdin.Close()
	}

	pid := cmd.Process.Pid
	p.drainers.Add(1)
	go func() {
		defer p.drainers.Done()
		drain(pid, "stdout", stdout, m.cfg.FragmentSize, m.notifier.Notify)
	}()
	p.drainers.Add(1)
	go func() {
		defer p.drainers.Done()
		drain(pid, "stderr", stderr, m.cfg.FragmentSize, m.notifier.Notify)
	}()
	return nil
}

// reap waits out the drainers and the child, emits the terminal
// process.exit notification, and frees the record. Notification order
// is guaranteed: all output fragments precede the exit event because
// the drainers finish first.
func (m *Manager) reap(p *Process) {
	defer m.wg.Done()

	p.drainers.Wait()
	p.setState(StateExiting)

	waitErr := p.cmd.Wait()
	if p.ptmx != nil {
		_ = p.ptmx.Close()
	}

	exitCode, signal, err := exitStatus(p.cmd.ProcessState, waitErr)
	if err != nil {
		logger.Error("wait failed", logger.KeyPID, p.PID, logger.KeyError, err)
		exitCode = -1
	}
	p.exitCode = exitCode
	p.exitSig = signal

	m.mu.Lock()
	delete(m.procs, p.PID)
	m.mu.Unlock()

	m.notifier.Notify(rpc.NewProcessExitEvent(p.PID, exitCode, signal))
	p.setState(StateGone)
	close(p.done)

	logger.Info("process exited",
		logger.KeyPID, p.PID,
		logger.KeyExitCode, exitCode,
		logger.KeySignal, signal)
}

// lookup fetches a live record.
func (m *Manager) lookup(pid int) (*Process, *rpc.Error) {
	m.mu.Lock()
	p, ok := m.procs[pid]
	m.mu.Unlock()
	if !ok {
		return nil, rpc.NoSuchProcess(pid)
	}
	return p, nil
}

// WriteStdinRequest feeds bytes to a managed child's input.
type WriteStdinRequest struct {
	PID   int    `msgpack:"pid"`
	Data  []byte `msgpack:"data"`
	Close bool   `msgpack:"close"`
}

// WriteStdin implements process.write_stdin.
func (m *Manager) WriteStdin(ctx context.Context, req *WriteStdinRequest) (any, *rpc.Error) {
	p, rpcErr := m.lookup(req.PID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := p.requireRunning(); rpcErr != nil {
		return nil, rpcErr
	}

	if err := p.writeStdin(req.Data, req.Close); err != nil {
		return nil, rpc.Errorf(rpc.CodeProcessFailure, "write stdin of %d: %v", req.PID, err)
	}
	return nil, nil
}

// SignalRequest delivers a signal to a managed child.
type SignalRequest struct {
	PID    int `msgpack:"pid"`
	Signal any `msgpack:"signal"`
}

// Signal implements process.signal.
func (m *Manager) Signal(ctx context.Context, req *SignalRequest) (any, *rpc.Error) {
	p, rpcErr := m.lookup(req.PID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := p.requireRunning(); rpcErr != nil {
		return nil, rpcErr
	}

	sig, err := ParseSignal(req.Signal)
	if err != nil {
		return nil, rpc.InvalidParams(err.Error())
	}

	if err := p.cmd.Process.Signal(sig); err != nil {
		return nil, rpc.NoSuchProcess(req.PID)
	}

	logger.InfoCtx(ctx, "signalled process",
		logger.KeyPID, req.PID,
		logger.KeySignal, SignalName(sig))
	return nil, nil
}

// ResizeRequest changes a PTY's window size.
type ResizeRequest struct {
	PID  int    `msgpack:"pid"`
	Cols uint16 `msgpack:"cols"`
	Rows uint16 `msgpack:"rows"`
}

// ResizePTY implements process.resize_pty: a window-change ioctl on
// the retained master. The kernel raises SIGWINCH in the child.
func (m *Manager) ResizePTY(ctx context.Context, req *ResizeRequest) (any, *rpc.Error) {
	p, rpcErr := m.lookup(req.PID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := p.requireRunning(); rpcErr != nil {
		return nil, rpcErr
	}
	if p.ptmx == nil {
		return nil, rpc.Errorf(rpc.CodeProcessFailure, "process %d has no pty", req.PID)
	}

	if err := pty.Setsize(p.ptmx, &pty.Winsize{Cols: req.Cols, Rows: req.Rows}); err != nil {
		return nil, rpc.Errorf(rpc.CodeProcessFailure, "resize pty of %d: %v", req.PID, err)
	}

	logger.DebugCtx(ctx, "resized pty",
		logger.KeyPID, req.PID,
		"cols", req.Cols,
		"rows", req.Rows)
	return nil, nil
}

// StopRequest terminates a managed child.
type StopRequest struct {
	PID       int    `msgpack:"pid"`
	Signal    any    `msgpack:"signal"`
	TimeoutMs *int64 `msgpack:"timeout_ms"`
}

// StopResult reports the exit code the reaper observed.
type StopResult struct {
	ExitCode int `msgpack:"exit_code"`
}

// Stop implements process.stop: deliver the requested signal (default
// SIGTERM), wait out the grace period, escalate to SIGKILL, and return
// the observed exit code once the reaper is done with the record.
func (m *Manager) Stop(ctx context.Context, req *StopRequest) (any, *rpc.Error) {
	p, rpcErr := m.lookup(req.PID)
	if rpcErr != nil {
		return nil, rpcErr
	}

	sig := unix.SIGTERM
	if req.Signal != nil {
		parsed, err := ParseSignal(req.Signal)
		if err != nil {
			return nil, rpc.InvalidParams(err.Error())
		}
		sig = parsed
	}

	timeout := m.cfg.StopTimeout
	if req.TimeoutMs != nil && *req.TimeoutMs > 0 {
		timeout = time.Duration(*req.TimeoutMs) * time.Millisecond
	}

	m.terminate(p, sig, timeout)

	<-p.done
	logger.InfoCtx(ctx, "stopped process",
		logger.KeyPID, req.PID,
		logger.KeyExitCode, p.exitCode)
	return &StopResult{ExitCode: p.exitCode}, nil
}

// terminate signals the child's group and arms the SIGKILL escalation.
func (m *Manager) terminate(p *Process, sig unix.Signal, grace time.Duration) {
	killGroup(p.PID, sig)

	escalate := time.AfterFunc(grace, func() {
		killGroup(p.PID, unix.SIGKILL)
	})
	go func() {
		<-p.done
		escalate.Stop()
	}()
}

// Shutdown terminates every live child and waits for the reapers, up
// to the given budget. Called once at connection teardown; children
// must not outlive the session that spawned them, and every one must
// be reaped to avoid zombies.
func (m *Manager) Shutdown(budget time.Duration) {
	close(m.shutdown)

	m.mu.Lock()
	live := make([]*Process, 0, len(m.procs))
	for _, p := range m.procs {
		live = append(live, p)
	}
	m.mu.Unlock()

	for _, p := range live {
		m.terminate(p, unix.SIGTERM, budget/2)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(budget):
		logger.Warn("shutdown budget exhausted with children still live")
	}
}

// Count reports the number of live records. Used by tests and the
// shutdown log line.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.procs)
}
