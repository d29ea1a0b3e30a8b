package logger

import (
	"log/slog"
)

// Standard field keys for structured logging. Use these consistently so
// log lines stay greppable across the server.
const (
	KeyMethod    = "method"     // RPC method name (file.read, process.start, ...)
	KeyRequestID = "request_id" // request id echoed from the envelope
	KeyPath      = "path"       // filesystem path
	KeyFromPath  = "from"       // source path for rename/copy
	KeyToPath    = "to"         // destination path for rename/copy
	KeySize      = "size"       // byte count
	KeyMode      = "mode"       // file mode bits
	KeyPID       = "pid"        // child process id
	KeyCmd       = "cmd"        // executable path
	KeySignal    = "signal"     // signal name or number
	KeyExitCode  = "exit_code"  // child exit status
	KeyWatcherID = "watcher_id" // watcher registry id
	KeyStream    = "stream"     // stdout, stderr, pty
	KeyEncoding  = "encoding"   // output encoder verdict
	KeyError     = "error"      // error message
	KeyErrorCode = "error_code" // RPC error code
	KeyDuration  = "duration_ms"
)

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Method returns a slog.Attr for the RPC method name
func Method(name string) slog.Attr {
	return slog.String(KeyMethod, name)
}

// Path returns a slog.Attr for a filesystem path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// PID returns a slog.Attr for a child process id
func PID(pid int) slog.Attr {
	return slog.Int(KeyPID, pid)
}

// WatcherID returns a slog.Attr for a watcher registry id
func WatcherID(id uint64) slog.Attr {
	return slog.Uint64(KeyWatcherID, id)
}
