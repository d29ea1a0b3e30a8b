package proc

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// signalsByName is the explicit signal catalog. Clients may name
// signals with or without the SIG prefix, or send the raw number.
// Realtime signals are deliberately absent; nothing an editor drives
// has business sending SIGRTMIN+n.
var signalsByName = map[string]unix.Signal{
	"HUP":    unix.SIGHUP,
	"INT":    unix.SIGINT,
	"QUIT":   unix.SIGQUIT,
	"ILL":    unix.SIGILL,
	"TRAP":   unix.SIGTRAP,
	"ABRT":   unix.SIGABRT,
	"BUS":    unix.SIGBUS,
	"FPE":    unix.SIGFPE,
	"KILL":   unix.SIGKILL,
	"USR1":   unix.SIGUSR1,
	"SEGV":   unix.SIGSEGV,
	"USR2":   unix.SIGUSR2,
	"PIPE":   unix.SIGPIPE,
	"ALRM":   unix.SIGALRM,
	"TERM":   unix.SIGTERM,
	"CHLD":   unix.SIGCHLD,
	"CONT":   unix.SIGCONT,
	"STOP":   unix.SIGSTOP,
	"TSTP":   unix.SIGTSTP,
	"TTIN":   unix.SIGTTIN,
	"TTOU":   unix.SIGTTOU,
	"URG":    unix.SIGURG,
	"XCPU":   unix.SIGXCPU,
	"XFSZ":   unix.SIGXFSZ,
	"VTALRM": unix.SIGVTALRM,
	"PROF":   unix.SIGPROF,
	"WINCH":  unix.SIGWINCH,
	"IO":     unix.SIGIO,
	"SYS":    unix.SIGSYS,
}

// ParseSignal resolves a wire-side signal value — a name like "SIGTERM"
// or "term", or a number — to the platform signal.
func ParseSignal(v any) (unix.Signal, error) {
	switch s := v.(type) {
	case string:
		name := strings.ToUpper(strings.TrimPrefix(strings.ToUpper(s), "SIG"))
		if sig, ok := signalsByName[name]; ok {
			return sig, nil
		}
		return 0, fmt.Errorf("unknown signal name: %q", s)
	case int:
		return unix.Signal(s), nil
	case int8:
		return unix.Signal(s), nil
	case int16:
		return unix.Signal(s), nil
	case int32:
		return unix.Signal(s), nil
	case int64:
		return unix.Signal(s), nil
	case uint8:
		return unix.Signal(s), nil
	case uint16:
		return unix.Signal(s), nil
	case uint32:
		return unix.Signal(s), nil
	case uint64:
		return unix.Signal(s), nil
	case nil:
		return 0, fmt.Errorf("signal missing")
	default:
		return 0, fmt.Errorf("signal must be a name or a number, got %T", v)
	}
}

// SignalName renders a signal for the wire ("TERM", "KILL").
func SignalName(sig unix.Signal) string {
	for name, s := range signalsByName {
		if s == sig {
			return name
		}
	}
	return fmt.Sprintf("%d", int(sig))
}
