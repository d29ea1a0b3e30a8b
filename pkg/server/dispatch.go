package server

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/marmos91/tramp-rpc-server/internal/handlers/proc"
	"github.com/marmos91/tramp-rpc-server/internal/handlers/watch"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
)

// handlerFunc is the uniform handler signature the dispatch table
// stores: raw params in, result or protocol error out.
type handlerFunc func(ctx context.Context, params msgpack.RawMessage) (any, *rpc.Error)

// typed adapts a handler taking a decoded argument struct to the
// uniform signature. Param decode failures become invalid-params
// before the handler ever runs.
func typed[T any](fn func(ctx context.Context, req *T) (any, *rpc.Error)) handlerFunc {
	return func(ctx context.Context, params msgpack.RawMessage) (any, *rpc.Error) {
		req := new(T)
		if rpcErr := rpc.UnmarshalParams(params, req); rpcErr != nil {
			return nil, rpcErr
		}
		return fn(ctx, req)
	}
}

// buildDispatchTable populates the static method-name → handler table.
// Built once at startup; read-only afterwards, so workers index it
// without locks.
func buildDispatchTable(s *Server) map[string]handlerFunc {
	return map[string]handlerFunc{
		"system.info": typed(s.sys.Info),

		"file.stat":     typed(s.fsh.Stat),
		"file.exists":   typed(s.fsh.Exists),
		"file.read":     typed(s.fsh.Read),
		"file.write":    typed(s.fsh.Write),
		"file.delete":   typed(s.fsh.Delete),
		"file.rename":   typed(s.fsh.Rename),
		"file.chmod":    typed(s.fsh.Chmod),
		"file.chown":    typed(s.fsh.Chown),
		"file.symlink":  typed(s.fsh.Symlink),
		"file.readlink": typed(s.fsh.Readlink),
		"file.copy":     typed(s.fsh.Copy),

		"dir.list":   typed(s.fsh.DirList),
		"dir.create": typed(s.fsh.DirCreate),
		"dir.remove": typed(s.fsh.DirRemove),

		"process.run":         typed(s.runner.Run),
		"process.start":       typed(s.procs.Start),
		"process.write_stdin": typed(s.procs.WriteStdin),
		"process.signal":      typed(s.procs.Signal),
		"process.resize_pty":  typed(s.procs.ResizePTY),
		"process.stop":        typed(s.procs.Stop),

		"watch.add":    typed(s.watchers.Add),
		"watch.remove": typed(s.watchers.Remove),

		"batch":                 typed(s.batcher.Run),
		"commands.run_parallel": typed(s.batcher.RunParallel),
	}
}

// dispatch routes one method invocation. Also the entry point the
// batch engine uses for its sub-requests.
func (s *Server) dispatch(ctx context.Context, method string, params msgpack.RawMessage) (any, *rpc.Error) {
	handler, ok := s.table[method]
	if !ok {
		return nil, rpc.MethodNotFound(method)
	}
	return handler(ctx, params)
}

// Compile-time checks that the server satisfies the notifier contracts.
var (
	_ proc.Notifier  = (*Server)(nil)
	_ watch.Notifier = (*Server)(nil)
)
