// Package proc implements process execution: the blocking one-shot
// process.run, and the async manager behind process.start and its
// companions.
package proc

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmos91/tramp-rpc-server/internal/logger"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
	"github.com/marmos91/tramp-rpc-server/internal/remotetext"
)

// killGrace is how long a timed-out child gets between SIGTERM and
// SIGKILL.
const killGrace = 2 * time.Second

// RunRequest is a blocking one-shot execution. Cmd is an executable
// and argv — never a shell line.
type RunRequest struct {
	Cmd        string            `msgpack:"cmd"`
	Args       []string          `msgpack:"args"`
	Cwd        string            `msgpack:"cwd"`
	Env        map[string]string `msgpack:"env"`
	Stdin      []byte            `msgpack:"stdin"`
	TimeoutMs  *int64            `msgpack:"timeout_ms"`
	LocaleHint string            `msgpack:"locale_hint"`
}

// RunResult reports the outcome with both captured streams classified
// by the output encoder.
type RunResult struct {
	ExitCode       int    `msgpack:"exit_code"`
	Stdout         any    `msgpack:"stdout"`
	StdoutEncoding string `msgpack:"stdout_encoding"`
	Stderr         any    `msgpack:"stderr"`
	StderrEncoding string `msgpack:"stderr_encoding"`
	TimedOut       bool   `msgpack:"timed_out"`
	Signal         string `msgpack:"signal,omitempty"`
}

// Runner executes one-shot commands.
type Runner struct {
	// DefaultLocaleHint seeds the output encoder when the request
	// carries no hint.
	DefaultLocaleHint string
}

// Run implements process.run. The child runs in its own process group
// so a timeout kill reaches the whole tree. On timeout the child gets
// SIGTERM, then SIGKILL after the grace period, and whatever output
// was captured comes back with timed_out set.
func (r *Runner) Run(ctx context.Context, req *RunRequest) (any, *rpc.Error) {
	if req.Cmd == "" {
		return nil, rpc.InvalidParams("cmd must not be empty")
	}

	cmd := exec.Command(req.Cmd, req.Args...)
	cmd.Dir = req.Cwd
	cmd.Env = overlayEnv(req.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if len(req.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(req.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, rpc.Errorf(rpc.CodeProcessFailure, "spawn %s: %v", req.Cmd, err)
	}

	var timedOut atomic.Bool
	var timer *time.Timer
	if req.TimeoutMs != nil && *req.TimeoutMs > 0 {
		timeout := time.Duration(*req.TimeoutMs) * time.Millisecond
		pgid := cmd.Process.Pid
		timer = time.AfterFunc(timeout, func() {
			timedOut.Store(true)
			killGroup(pgid, unix.SIGTERM)
			time.AfterFunc(killGrace, func() {
				killGroup(pgid, unix.SIGKILL)
			})
		})
	}

	waitErr := cmd.Wait()
	if timer != nil {
		timer.Stop()
	}

	exitCode, signal, err := exitStatus(cmd.ProcessState, waitErr)
	if err != nil {
		return nil, rpc.Errorf(rpc.CodeProcessFailure, "wait for %s: %v", req.Cmd, err)
	}

	hint := req.LocaleHint
	if hint == "" {
		hint = r.DefaultLocaleHint
	}
	outEnc := remotetext.Encode(stdout.Bytes(), hint)
	errEnc := remotetext.Encode(stderr.Bytes(), hint)

	logger.InfoCtx(ctx, "ran command",
		logger.KeyCmd, req.Cmd,
		logger.KeyExitCode, exitCode,
		"timed_out", timedOut.Load(),
		logger.KeyDuration, logger.Duration(start))

	return &RunResult{
		ExitCode:       exitCode,
		Stdout:         outEnc.Payload,
		StdoutEncoding: outEnc.Encoding,
		Stderr:         errEnc.Payload,
		StderrEncoding: errEnc.Encoding,
		TimedOut:       timedOut.Load(),
		Signal:         signal,
	}, nil
}

// overlayEnv merges the request's environment on top of the server's.
func overlayEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil // inherit as-is
	}
	merged := os.Environ()
	for k, v := range env {
		merged = append(merged, k+"="+v)
	}
	return merged
}

// killGroup signals a whole process group, falling back to the single
// process when the group is already gone.
func killGroup(pgid int, sig unix.Signal) {
	if err := unix.Kill(-pgid, sig); err != nil {
		_ = unix.Kill(pgid, sig)
	}
}

// exitStatus decodes a wait outcome into the protocol's exit_code and
// signal. A signal death reports 128+signo, the shell convention, plus
// the signal name.
func exitStatus(state *os.ProcessState, waitErr error) (int, string, error) {
	if state == nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			state = exitErr.ProcessState
		}
	}
	if state == nil {
		if waitErr != nil {
			return 0, "", waitErr
		}
		return 0, "", errors.New("no process state")
	}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig := unix.Signal(ws.Signal())
		return 128 + int(sig), SignalName(sig), nil
	}
	return state.ExitCode(), "", nil
}
