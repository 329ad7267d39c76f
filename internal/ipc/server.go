package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"tailor/internal/daemon"
	"tailor/internal/logging"
)

// Server serves the daemon's JSON-RPC API on a Unix domain socket.
type Server struct {
	socket   string
	logger   *slog.Logger
	listener net.Listener
	rpc      *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer binds socket, replacing any stale socket file left behind by a
// previous daemon. The daemon lock guarantees no live daemon owns it.
func NewServer(ctx context.Context, socket string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	serverCtx, cancel := context.WithCancel(ctx)
	registry := rpc.NewServer()
	if err := registry.RegisterName(ServiceName, &service{daemon: d, logger: logger, ctx: serverCtx}); err != nil {
		cancel()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	if err := os.Remove(socket); err != nil && !errors.Is(err, os.ErrNotExist) {
		cancel()
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", socket)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	return &Server{
		socket:   socket,
		logger:   logger,
		listener: listener,
		rpc:      registry,
		ctx:      serverCtx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Serve accepts connections in the background until Close.
func (s *Server) Serve() {
	s.logger.Debug("ipc listening", logging.String("socket", s.socket))
	s.wg.Add(1)
	go s.acceptLoop()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "CLI commands fall back to direct store access"),
				logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon"))
			continue
		}
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.rpc.ServeCodec(jsonrpc.NewServerCodec(conn))
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Close stops accepting, drops open client connections and removes the
// socket file.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()

	s.mu.Lock()
	open := s.conns
	s.conns = nil
	s.mu.Unlock()
	for conn := range open {
		_ = conn.Close()
	}
	s.wg.Wait()

	if err := os.Remove(s.socket); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(s.logger, "socket cleanup failed", "ipc_socket_cleanup_failed",
			logging.String("socket", s.socket),
			logging.Error(err),
			logging.String(logging.FieldImpact, "next daemon start replaces the stale socket"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}
