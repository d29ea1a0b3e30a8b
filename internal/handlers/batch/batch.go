// Package batch implements the request-bundling primitives: batch
// (sequential sub-requests in one envelope) and commands.run_parallel
// (bounded concurrent command execution).
package batch

import (
	"context"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/tramp-rpc-server/internal/handlers/proc"
	"github.com/marmos91/tramp-rpc-server/internal/logger"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
)

// Dispatch invokes a method through the server's dispatch table. The
// engine gets it injected so batched sub-requests see exactly the same
// method surface as top-level ones — minus batch itself.
type Dispatch func(ctx context.Context, method string, params msgpack.RawMessage) (any, *rpc.Error)

// Engine executes the bundling primitives.
type Engine struct {
	dispatch Dispatch
	runner   *proc.Runner

	// parallelism bounds commands.run_parallel concurrency.
	parallelism int
}

// NewEngine creates a batch engine over the given dispatcher.
func NewEngine(dispatch Dispatch, runner *proc.Runner, parallelism int) *Engine {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Engine{dispatch: dispatch, runner: runner, parallelism: parallelism}
}

// SubRequest is one method invocation inside a batch.
type SubRequest struct {
	Method string             `msgpack:"method"`
	Params msgpack.RawMessage `msgpack:"params"`
}

// Request is the batch params: an ordered vector of sub-requests.
type Request struct {
	Requests []SubRequest `msgpack:"requests"`
}

// SubResult is one slot of the batch result: exactly one of result or
// error, mirroring a response envelope's body.
type SubResult struct {
	Result any
	Err    *rpc.Error
}

var _ msgpack.CustomEncoder = (*SubResult)(nil)

// EncodeMsgpack writes the slot as a single-key map so a successful
// nil result stays distinguishable from an error.
func (s *SubResult) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	if s.Err != nil {
		if err := enc.EncodeString("error"); err != nil {
			return err
		}
		return enc.Encode(s.Err)
	}
	if err := enc.EncodeString("result"); err != nil {
		return err
	}
	return enc.Encode(s.Result)
}

// Result is the batch response body.
type Result struct {
	Results []*SubResult `msgpack:"results"`
}

// Run implements batch. Sub-requests execute strictly in order and
// every one is attempted: an error fills its slot and execution moves
// on. Nothing here is transactional.
func (e *Engine) Run(ctx context.Context, req *Request) (any, *rpc.Error) {
	results := make([]*SubResult, 0, len(req.Requests))
	for i := range req.Requests {
		sub := &req.Requests[i]
		if sub.Method == "batch" {
			// One level only; unbounded nesting is a stack grenade.
			results = append(results, &SubResult{Err: rpc.InvalidRequest("batch cannot nest")})
			continue
		}
		value, rpcErr := e.dispatch(ctx, sub.Method, sub.Params)
		if rpcErr != nil {
			results = append(results, &SubResult{Err: rpcErr})
			continue
		}
		results = append(results, &SubResult{Result: value})
	}

	logger.DebugCtx(ctx, "batch complete", "requests", len(req.Requests))
	return &Result{Results: results}, nil
}

// CommandSpec is one command in a parallel execution request.
type CommandSpec struct {
	Cmd  string            `msgpack:"cmd"`
	Args []string          `msgpack:"args"`
	Cwd  string            `msgpack:"cwd"`
	Env  map[string]string `msgpack:"env"`
}

// ParallelRequest maps client-chosen keys to commands.
type ParallelRequest struct {
	Commands map[string]CommandSpec `msgpack:"commands"`
}

// RunParallel implements commands.run_parallel: every command runs
// through the one-shot executor, at most `parallelism` at a time, and
// the response maps each client key directly to its process.run
// result. A spawn failure fills that key with an error slot instead.
func (e *Engine) RunParallel(ctx context.Context, req *ParallelRequest) (any, *rpc.Error) {
	results := make(map[string]any, len(req.Commands))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(e.parallelism)

	for key, spec := range req.Commands {
		g.Go(func() error {
			value, rpcErr := e.runner.Run(ctx, &proc.RunRequest{
				Cmd:  spec.Cmd,
				Args: spec.Args,
				Cwd:  spec.Cwd,
				Env:  spec.Env,
			})

			var slot any = value
			if rpcErr != nil {
				slot = &SubResult{Err: rpcErr}
			}

			mu.Lock()
			results[key] = slot
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	logger.DebugCtx(ctx, "parallel commands complete", "commands", len(req.Commands))
	return results, nil
}
