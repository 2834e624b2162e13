package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BJam/fusion-cam-mcp/internal/config"
	"github.com/BJam/fusion-cam-mcp/internal/errors"
	"github.com/BJam/fusion-cam-mcp/internal/wire"
)

const (
	// readChunkSize is the per-read buffer for connection workers.
	readChunkSize = 64 * 1024

	// acceptPollInterval is the accept deadline, short enough that the
	// accept loop observes shutdown promptly instead of blocking
	// forever.
	acceptPollInterval = 1 * time.Second

	// shutdownTimeout bounds the join of all connection workers.
	shutdownTimeout = 3 * time.Second
)

// DispatchFunc answers one parsed request with an envelope.
type DispatchFunc func(ctx context.Context, req *wire.Request) *wire.Envelope

// Server is the bridge's connection manager.
type Server struct {
	log      *slog.Logger
	port     int
	dispatch DispatchFunc

	listener *net.TCPListener

	ctx    context.Context
	cancel context.CancelFunc

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	running   atomic.Bool
	group     *errgroup.Group
	closeOnce sync.Once
}

// New creates a Server that will listen on 127.0.0.1:port. A port of
// zero lets the OS pick one (tests use this).
func New(log *slog.Logger, port int, dispatch DispatchFunc) *Server {
	return &Server{
		log:      log.With("component", "tcp_server"),
		port:     port,
		dispatch: dispatch,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Start binds the listener and launches the accept loop. It binds the
// loopback address only; the bridge is a localhost trust boundary and
// never listens on a wildcard address. (Go enables address reuse on TCP
// listeners by default, so restarts do not trip over TIME_WAIT.)
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", config.DefaultHost, s.port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &errors.ListenError{Addr: addr, Err: err}
	}

	s.listener = ln.(*net.TCPListener)
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)
	s.group = &errgroup.Group{}

	s.group.Go(s.acceptLoop)

	s.log.Info("TCP server started", "addr", s.Addr())

	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Port returns the bound TCP port, or 0 before Start.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}

	return s.listener.Addr().(*net.TCPAddr).Port
}

// acceptLoop accepts connections until shutdown, spawning one worker
// per connection. The short accept deadline lets it notice the running
// flag without blocking in accept indefinitely.
func (s *Server) acceptLoop() error {
	for s.running.Load() {
		if err := s.listener.SetDeadline(time.Now().Add(acceptPollInterval)); err != nil {
			return nil // listener closed
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if stderrors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}

			if stderrors.Is(err, net.ErrClosed) || !s.running.Load() {
				return nil
			}

			s.log.Warn("Accept failed", "error", err)

			continue
		}

		s.log.Debug("Client connected", "remote", conn.RemoteAddr())
		s.track(conn)

		s.group.Go(func() error {
			s.handleConn(conn)

			return nil
		})
	}

	return nil
}

// handleConn is the per-connection worker loop: blocking reads feed the
// line framer; every complete message is parsed, dispatched, and
// answered. A malformed message keeps the connection; a transport
// error ends it.
func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		s.untrack(conn)

		_ = conn.Close()

		s.log.Debug("Client disconnected", "remote", conn.RemoteAddr())
	}()

	var framer wire.LineBuffer

	chunk := make([]byte, readChunkSize)

	for s.running.Load() {
		// A read may deliver final bytes together with EOF (request then
		// FIN in one segment); drain them before acting on the error so
		// a half-closing client still gets its last answer.
		n, err := conn.Read(chunk)

		if n > 0 {
			framer.Feed(chunk[:n])

			for {
				line, ok := framer.Next()
				if !ok {
					break
				}

				env := s.process(line)

				data, encErr := wire.EncodeLine(env)
				if encErr != nil {
					s.log.Error("Response not serializable", "error", encErr)

					data, _ = wire.EncodeLine(wire.Errf("Failed to encode response: %v", encErr))
				}

				if _, writeErr := conn.Write(data); writeErr != nil {
					return
				}
			}
		}

		if err != nil {
			// EOF, reset, or forced close during shutdown.
			return
		}
	}
}

// process answers one framed message. Parse failures are message
// scoped: they produce an error envelope without reaching the
// dispatcher.
func (s *Server) process(line []byte) *wire.Envelope {
	req, errEnv := wire.ParseRequest(line)
	if errEnv != nil {
		return errEnv
	}

	return s.dispatch(s.ctx, req)
}

// track registers a live connection so Close can force it awake.
func (s *Server) track(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	delete(s.conns, conn)
}

// Close shuts the server down: it stops accepting, force-closes every
// live connection to unblock workers stuck in a read, closes the
// listener, and joins all workers within shutdownTimeout. Closing an
// already-closed socket is not an error.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.running.Store(false)

		if s.cancel != nil {
			s.cancel()
		}

		s.connsMu.Lock()

		for conn := range s.conns {
			_ = conn.Close()
		}

		clear(s.conns)

		s.connsMu.Unlock()

		if s.listener != nil {
			_ = s.listener.Close()
		}

		if s.group != nil {
			done := make(chan struct{})

			go func() {
				_ = s.group.Wait()

				close(done)
			}()

			select {
			case <-done:
			case <-time.After(shutdownTimeout):
				s.log.Warn("Timed out waiting for connection workers to exit")
			}
		}

		s.log.Info("TCP server stopped")
	})

	return nil
}
