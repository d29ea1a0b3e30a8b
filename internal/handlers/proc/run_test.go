package proc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tramp-rpc-server/internal/handlers/proc"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
)

func runCommand(t *testing.T, req *proc.RunRequest) *proc.RunResult {
	t.Helper()
	runner := &proc.Runner{}
	result, rpcErr := runner.Run(context.Background(), req)
	require.Nil(t, rpcErr)
	return result.(*proc.RunResult)
}

func TestRun_Echo(t *testing.T) {
	res := runCommand(t, &proc.RunRequest{
		Cmd:  "echo",
		Args: []string{"hello", "world"},
		Cwd:  t.TempDir(),
	})

	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello world\n", res.Stdout)
	assert.Equal(t, "utf-8", res.StdoutEncoding)
	assert.Equal(t, "", res.Stderr)
	assert.False(t, res.TimedOut)
}

func TestRun_ExitCode(t *testing.T) {
	res := runCommand(t, &proc.RunRequest{
		Cmd:  "sh",
		Args: []string{"-c", "exit 3"},
	})
	assert.Equal(t, 3, res.ExitCode)
}

func TestRun_Stderr(t *testing.T) {
	res := runCommand(t, &proc.RunRequest{
		Cmd:  "sh",
		Args: []string{"-c", "echo oops >&2"},
	})
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Equal(t, "", res.Stdout)
}

func TestRun_Stdin(t *testing.T) {
	res := runCommand(t, &proc.RunRequest{
		Cmd:   "cat",
		Stdin: []byte("fed through stdin"),
	})
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "fed through stdin", res.Stdout)
}

func TestRun_EnvOverlay(t *testing.T) {
	res := runCommand(t, &proc.RunRequest{
		Cmd:  "sh",
		Args: []string{"-c", "echo $MARKER"},
		Env:  map[string]string{"MARKER": "present"},
	})
	assert.Equal(t, "present\n", res.Stdout)
}

// Binary stdout must come back tagged binary with every byte intact.
func TestRun_BinaryOutput(t *testing.T) {
	res := runCommand(t, &proc.RunRequest{
		Cmd:  "printf",
		Args: []string{`\377\376\000`},
	})
	assert.Equal(t, "binary", res.StdoutEncoding)
	assert.Equal(t, []byte{0xff, 0xfe, 0x00}, res.Stdout)
}

func TestRun_Timeout(t *testing.T) {
	timeout := int64(200)
	start := time.Now()
	res := runCommand(t, &proc.RunRequest{
		Cmd:       "sleep",
		Args:      []string{"30"},
		TimeoutMs: &timeout,
	})

	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.NotEqual(t, 0, res.ExitCode)
}

func TestRun_PartialOutputOnTimeout(t *testing.T) {
	timeout := int64(300)
	res := runCommand(t, &proc.RunRequest{
		Cmd:       "sh",
		Args:      []string{"-c", "echo before; sleep 30; echo after"},
		TimeoutMs: &timeout,
	})

	assert.True(t, res.TimedOut)
	assert.Equal(t, "before\n", res.Stdout)
}

func TestRun_SignalDeath(t *testing.T) {
	res := runCommand(t, &proc.RunRequest{
		Cmd:  "sh",
		Args: []string{"-c", "kill -KILL $$"},
	})
	assert.Equal(t, 128+9, res.ExitCode)
	assert.Equal(t, "KILL", res.Signal)
}

func TestRun_SpawnFailure(t *testing.T) {
	runner := &proc.Runner{}
	_, rpcErr := runner.Run(context.Background(), &proc.RunRequest{
		Cmd: "/nonexistent/binary",
	})
	require.NotNil(t, rpcErr)
	assert.Equal(t, rpc.CodeProcessFailure, rpcErr.Code)
}

func TestRun_EmptyCmd(t *testing.T) {
	runner := &proc.Runner{}
	_, rpcErr := runner.Run(context.Background(), &proc.RunRequest{})
	require.NotNil(t, rpcErr)
	assert.Equal(t, rpc.CodeInvalidParams, rpcErr.Code)
}

func TestParseSignal(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"SIGTERM", "TERM"},
		{"term", "TERM"},
		{"KILL", "KILL"},
		{int64(9), "KILL"},
		{int8(2), "INT"},
	}
	for _, tt := range tests {
		sig, err := proc.ParseSignal(tt.in)
		require.NoError(t, err, "%v", tt.in)
		assert.Equal(t, tt.want, proc.SignalName(sig), "%v", tt.in)
	}

	_, err := proc.ParseSignal("SIGWHATEVER")
	assert.Error(t, err)
	_, err = proc.ParseSignal(nil)
	assert.Error(t, err)
}
