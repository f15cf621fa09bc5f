package framechat

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Handler serves one accepted peer connection. The context is canceled when
// the server shuts down; the handler owns conn and must close it.
type Handler interface {
	ServePeer(ctx context.Context, conn net.Conn)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, conn net.Conn)

// ServePeer calls f(ctx, conn).
func (f HandlerFunc) ServePeer(ctx context.Context, conn net.Conn) {
	f(ctx, conn)
}

// Server accepts framechat peers on a TCP listener.
type Server struct {
	listener     *net.TCPListener
	logger       Logger
	drainTimeout time.Duration

	mu       sync.Mutex
	shutdown bool
	peers    sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerDrainTimeoutOption sets how long Serve waits for running handlers
// after its context is canceled. Default is 0 (do not wait).
func ServerDrainTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.drainTimeout = timeout
	}
}

// Listen creates a new server bound to addr ("host:port").
func Listen(addr string, opts ...ServerOption) (*Server, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", addr)
	}

	listener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener: listener,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Serve accepts connections and runs handler for each in its own goroutine.
// It blocks until ctx is canceled or accepting fails, then stops accepting
// and, if a drain timeout is set, waits up to that long for handlers.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Info("server started", "addr", s.listener.Addr())

	peerCtx, cancelPeers := context.WithCancel(ctx)
	defer cancelPeers()

	go func() {
		<-peerCtx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		// unblock Accept
		_ = s.listener.SetDeadline(time.Now())
	}()

	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				cancelPeers()
				s.drain()
				s.logger.Info("server stopped", "addr", s.listener.Addr())
				return ctx.Err()
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return err
		}

		s.logger.Debug("accepted connection", "remote_addr", conn.RemoteAddr())
		_ = conn.SetNoDelay(true)

		s.peers.Add(1)
		go func() {
			defer s.peers.Done()
			handler.ServePeer(peerCtx, conn)
		}()
	}
}

// drain waits for running handlers, bounded by the drain timeout.
func (s *Server) drain() {
	if s.drainTimeout <= 0 {
		return
	}

	finished := make(chan struct{})
	go func() {
		s.peers.Wait()
		close(finished)
	}()

	s.logger.Info("waiting for peers", "timeout", s.drainTimeout)
	select {
	case <-finished:
	case <-time.After(s.drainTimeout):
		s.logger.Warn("drain timeout expired")
	}
}

// Close stops the server by closing the underlying listener.
// Any blocked Accept calls will return with an error.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	return s.listener.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
