package frontend

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/alpacahq/aesdsocket/metrics"
	"github.com/alpacahq/aesdsocket/registry"
	"github.com/alpacahq/aesdsocket/utils/log"
)

// SharedLog is the log every connection appends to and reads back.
type SharedLog interface {
	Append(p []byte) error
	ReadAll(w io.Writer) (int64, error)
}

// Publisher receives a copy of every appended packet.
type Publisher interface {
	Push(source string, data []byte)
}

const maxAcceptDelay = time.Second

// Server owns the listening socket and spawns one worker per accepted
// connection.
type Server struct {
	log          SharedLog
	registry     *registry.Registry
	publisher    Publisher
	writeTimeout time.Duration

	mu         sync.Mutex
	listener   net.Listener
	acceptDone chan struct{}
	// closed is the shutdown flag: set once, never cleared.
	closed atomic.Bool
}

// NewServer returns a Server appending to l and tracking workers in reg.
// pub may be nil. A zero writeTimeout means responses have no deadline.
func NewServer(l SharedLog, reg *registry.Registry, pub Publisher, writeTimeout time.Duration) *Server {
	return &Server{
		log:          l,
		registry:     reg,
		publisher:    pub,
		writeTimeout: writeTimeout,
	}
}

// Listen binds addr for TCP.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return ln, nil
}

// Addr returns the listener's network address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Registry returns the worker registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Accepting reports whether the server is still taking connections.
func (s *Server) Accepting() bool {
	return !s.closed.Load()
}

// Serve runs the accept loop on ln. It blocks until StopAccepting is
// called, and then returns nil. Individual accept failures are logged and
// the loop continues.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return ln.Close()
	}
	if s.listener != nil {
		s.mu.Unlock()
		return errors.New("server is already serving")
	}
	s.listener = ln
	s.acceptDone = make(chan struct{})
	done := s.acceptDone
	s.mu.Unlock()
	defer close(done)

	log.Info("accepting connections on %s", ln.Addr())

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			metrics.AcceptErrorsTotal.Inc()
			if errors.Is(err, net.ErrClosed) {
				return errors.Wrap(err, "listener closed unexpectedly")
			}
			delay = nextAcceptDelay(delay)
			log.Error("accept error: %v; retrying in %v", err, delay)
			time.Sleep(delay)
			continue
		}
		delay = 0
		s.accept(conn)
	}
}

func (s *Server) accept(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	log.Info("Accepted connection from %s", hostOf(remote))
	metrics.ConnectionsAcceptedTotal.Inc()
	metrics.ConnectionsActive.Inc()

	id := s.registry.Register(remote, func() {
		// wakes a blocked read, which discards the partial packet, or a
		// response write stalled on a peer that stopped reading
		_ = conn.SetDeadline(time.Now())
	})
	go s.serveConn(id, conn)
}

// StopAccepting sets the shutdown flag, closes the listener and waits for
// the accept loop to return. No worker is registered after it returns.
func (s *Server) StopAccepting() {
	if s.closed.Swap(true) {
		return
	}

	s.mu.Lock()
	ln, done := s.listener, s.acceptDone
	s.mu.Unlock()
	if ln == nil {
		return
	}

	if err := ln.Close(); err != nil {
		log.Error("error closing listener: %v", err)
	}
	<-done
	log.Info("stopped accepting connections")
}

// Drain waits for every registered worker to finish. Workers that are
// still running after grace have their pending read interrupted.
func (s *Server) Drain(ctx context.Context, grace time.Duration) error {
	if grace > 0 {
		gctx, cancel := context.WithTimeout(ctx, grace)
		err := s.registry.Wait(gctx)
		cancel()
		if err == nil {
			return nil
		}
	}
	if n := s.registry.Interrupt(); n > 0 {
		log.Info("interrupting %d in-flight connection(s)", n)
	}
	return s.registry.Wait(ctx)
}

func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > maxAcceptDelay {
		return maxAcceptDelay
	}
	return d
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
