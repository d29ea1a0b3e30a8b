// Package server wires the transport loop: one reader goroutine
// draining stdin, a bounded pool of workers executing handlers, and a
// single writer goroutine that owns stdout framing. Notifications from
// the process manager and the watcher registry merge into the same
// writer queue, so no two frames can ever interleave.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/marmos91/tramp-rpc-server/internal/handlers/batch"
	"github.com/marmos91/tramp-rpc-server/internal/handlers/fs"
	"github.com/marmos91/tramp-rpc-server/internal/handlers/proc"
	"github.com/marmos91/tramp-rpc-server/internal/handlers/sysinfo"
	"github.com/marmos91/tramp-rpc-server/internal/handlers/watch"
	"github.com/marmos91/tramp-rpc-server/internal/logger"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/frame"
	"github.com/marmos91/tramp-rpc-server/internal/protocol/rpc"
	"github.com/marmos91/tramp-rpc-server/pkg/bufpool"
	"github.com/marmos91/tramp-rpc-server/pkg/config"
)

// outboundDepth is the writer queue capacity. Producers block once the
// client stops reading fast enough; backpressure, not unbounded memory.
const outboundDepth = 256

// Server is one connection's worth of everything. The process serves
// exactly one connection in its lifetime: transport death is server
// death.
type Server struct {
	cfg     *config.Config
	version string

	reader *frame.Reader
	writer *frame.Writer

	// outbound carries fully encoded payloads to the writer goroutine.
	outbound chan []byte

	// requests carries framed-but-undecoded payloads to the workers.
	requests chan []byte

	table map[string]handlerFunc

	fsh      *fs.Handler
	sys      *sysinfo.Handler
	runner   *proc.Runner
	procs    *proc.Manager
	watchers *watch.Registry
	batcher  *batch.Engine

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New assembles a server over the given transport endpoints. For
// standard operation in and out are stdin and stdout.
func New(cfg *config.Config, version string, in io.Reader, out io.Writer) *Server {
	maxFrame := uint32(cfg.Server.MaxFrameSize.Uint64())

	s := &Server{
		cfg:        cfg,
		version:    version,
		reader:     frame.NewReader(in, maxFrame),
		writer:     frame.NewWriter(out, maxFrame),
		outbound:   make(chan []byte, outboundDepth),
		requests:   make(chan []byte, cfg.Server.Workers),
		shutdownCh: make(chan struct{}),
	}

	s.fsh = &fs.Handler{DefaultLocaleHint: cfg.Encoding.LocaleHint}
	s.sys = &sysinfo.Handler{ServerVersion: version}
	s.runner = &proc.Runner{DefaultLocaleHint: cfg.Encoding.LocaleHint}
	s.procs = proc.NewManager(proc.ManagerConfig{
		FragmentSize: cfg.Process.OutputFragmentSize.Int(),
		StopTimeout:  cfg.Process.StopTimeout,
		DefaultTerm:  cfg.Process.Term,
	}, s)
	s.watchers = watch.NewRegistry(s)
	s.batcher = batch.NewEngine(s.dispatch, s.runner, cfg.Server.ParallelCommands)

	s.table = buildDispatchTable(s)
	return s
}

// Notify implements the Notifier interface for the process manager and
// watcher registry: encode the event and queue it on the writer.
func (s *Server) Notify(event any) {
	payload, err := rpc.EncodeNotification(event)
	if err != nil {
		logger.Error("failed to encode notification", logger.KeyError, err)
		return
	}
	s.enqueue(payload)
}

// enqueue hands an encoded payload to the writer goroutine. During
// shutdown payloads are dropped; the transport is already gone.
func (s *Server) enqueue(payload []byte) {
	select {
	case s.outbound <- payload:
	case <-s.shutdownCh:
	}
}

// Serve runs the connection until the transport dies, then tears
// everything down. It returns once the server is fully drained.
func (s *Server) Serve(ctx context.Context) error {
	// The one startup line a bootstrap collaborator looks for. On
	// stderr: the protocol owns stdout.
	fmt.Fprintf(os.Stderr, "tramp-rpc-server %s ready\n", s.version)

	logger.Info("server starting",
		"version", s.version,
		"workers", s.cfg.Server.Workers,
		"max_frame_size", s.cfg.Server.MaxFrameSize)

	var workers sync.WaitGroup
	for i := 0; i < s.cfg.Server.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for payload := range s.requests {
				s.process(ctx, payload)
			}
		}()
	}

	writerDone := make(chan struct{})
	go s.runWriter(writerDone)

	readErr := s.readLoop(ctx)

	// Teardown. Order matters: stop admitting work, kill children so
	// blocked handlers unwind, then give responses a bounded drain.
	s.triggerShutdown()
	close(s.requests)

	s.procs.Shutdown(s.cfg.Server.ShutdownDrain)
	s.watchers.Shutdown()

	waitTimeout(&workers, s.cfg.Server.ShutdownDrain)

	close(s.outbound)
	select {
	case <-writerDone:
	case <-time.After(s.cfg.Server.ShutdownDrain):
		logger.Warn("writer did not drain before deadline")
	}

	logger.Info("server stopped", logger.KeyError, readErr)
	if errors.Is(readErr, io.EOF) {
		return nil
	}
	return readErr
}

// readLoop drains the transport and feeds the worker queue. It is the
// only goroutine that touches the reader. It never blocks on handler
// work — admission is the queue's job.
func (s *Server) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.shutdownCh:
			return errors.New("shutdown requested")
		default:
		}

		payload, err := s.reader.Next()
		if err != nil {
			var tooLarge *frame.ErrFrameTooLarge
			switch {
			case errors.Is(err, io.EOF):
				logger.Info("transport closed by peer")
			case errors.As(err, &tooLarge):
				logger.Error("oversized frame, aborting connection", logger.KeyError, err)
			default:
				logger.Error("transport read failed", logger.KeyError, err)
			}
			return err
		}

		select {
		case s.requests <- payload:
		case <-s.shutdownCh:
			bufpool.Put(payload)
			return errors.New("shutdown requested")
		}
	}
}

// runWriter is the single writer goroutine. Every frame on the wire
// passes through here, serialized by construction.
func (s *Server) runWriter(done chan<- struct{}) {
	defer close(done)
	for payload := range s.outbound {
		if err := s.writer.Write(payload); err != nil {
			logger.Error("transport write failed", logger.KeyError, err)
			s.triggerShutdown()
			// Keep draining the channel so producers never wedge;
			// the frames go nowhere.
		}
	}
}

func (s *Server) triggerShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})
}

// process decodes one framed payload, runs the handler, and queues the
// response. Runs on a worker goroutine; panics here must never take
// the server down.
func (s *Server) process(ctx context.Context, payload []byte) {
	req, decodeErr := rpc.DecodeRequest(payload)
	bufpool.Put(payload)

	if decodeErr != nil {
		if req != nil && !req.IsNotification() {
			// The id survived the wreck; answer with a parse error.
			s.respondError(req, rpc.ParseError(decodeErr.Error()))
			return
		}
		// Unrecoverable: codec state is untrustworthy, close up.
		logger.Error("undecodable request, closing connection", logger.KeyError, decodeErr)
		s.triggerShutdown()
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in handler",
				logger.KeyMethod, req.Method,
				"panic", r,
				"stack", string(debug.Stack()))
			if !req.IsNotification() {
				s.respondError(req, rpc.Internal(fmt.Sprintf("handler panic: %v", r)))
			}
		}
	}()

	if req.Version != "" && req.Version != rpc.Version {
		s.respondError(req, rpc.InvalidRequest("unsupported protocol version: "+req.Version))
		return
	}
	if req.Method == "" {
		s.respondError(req, rpc.InvalidRequest("missing method"))
		return
	}

	lc := logger.NewLogContext(req.Method, req.IDString())
	reqCtx := logger.WithContext(ctx, lc)

	logger.DebugCtx(reqCtx, "request")

	result, rpcErr := s.dispatch(reqCtx, req.Method, req.Params)

	if req.IsNotification() {
		// Fire-and-forget by contract; even errors stay silent.
		return
	}
	if rpcErr != nil {
		logger.DebugCtx(reqCtx, "request failed",
			logger.KeyErrorCode, rpcErr.Code,
			logger.KeyError, rpcErr.Message,
			logger.KeyDuration, logger.Duration(lc.StartTime))
		s.respondError(req, rpcErr)
		return
	}

	logger.DebugCtx(reqCtx, "request complete",
		logger.KeyDuration, logger.Duration(lc.StartTime))
	s.respondResult(req, result)
}

func (s *Server) respondResult(req *rpc.Request, result any) {
	payload, err := rpc.EncodeResult(req.ID, result)
	if err != nil {
		logger.Error("failed to encode result",
			logger.KeyMethod, req.Method,
			logger.KeyError, err)
		s.respondError(req, rpc.Internal("failed to encode result"))
		return
	}
	s.enqueue(payload)
}

func (s *Server) respondError(req *rpc.Request, rpcErr *rpc.Error) {
	payload, err := rpc.EncodeError(req.ID, rpcErr)
	if err != nil {
		logger.Error("failed to encode error response", logger.KeyError, err)
		return
	}
	s.enqueue(payload)
}

// waitTimeout waits on a WaitGroup, but not forever.
func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("workers still busy at drain deadline")
	}
}
