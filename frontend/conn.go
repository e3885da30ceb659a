package frontend

import (
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/alpacahq/aesdsocket/metrics"
	"github.com/alpacahq/aesdsocket/packet"
	"github.com/alpacahq/aesdsocket/registry"
	"github.com/alpacahq/aesdsocket/utils/log"
)

// serveConn drives one connection: receive a packet, append it, send the
// whole log back, and repeat until the peer goes away.
func (s *Server) serveConn(id registry.ID, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	source := "tcp/" + remote

	defer func() {
		if err := conn.Close(); err != nil {
			log.Debug("close %s: %v", remote, err)
		}
		log.Info("Closed connection from %s", hostOf(remote))
		if e, ok := s.registry.Get(id); ok {
			log.Debug("%s served for %s", remote, time.Since(e.Started))
		}
		metrics.ConnectionsActive.Dec()
		// must stay last: the registry may retire the entry right after
		s.registry.MarkDone(id)
	}()

	a := packet.NewAssembler(conn)
	for {
		p, err := a.Next()
		if err != nil {
			s.endOfStream(remote, err)
			return
		}

		if err := s.log.Append(p); err != nil {
			log.Error("failed to append packet from %s: %v", remote, err)
			return
		}
		metrics.PacketsAppendedTotal.Inc()
		metrics.AppendedBytesTotal.Add(float64(len(p)))
		if s.publisher != nil {
			s.publisher.Push(source, p)
		}

		if err := s.respond(conn); err != nil {
			log.Debug("failed to respond to %s: %v", remote, err)
			return
		}

		if s.closed.Load() {
			return
		}
	}
}

func (s *Server) respond(conn net.Conn) error {
	if s.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	start := time.Now()
	_, err := s.log.ReadAll(conn)
	metrics.ResponseDuration.Observe(time.Since(start).Seconds())
	return err
}

func (s *Server) endOfStream(remote string, err error) {
	var truncated *packet.TruncatedError
	switch {
	case errors.Is(err, packet.ErrTooLarge):
		log.Fatal("out of memory assembling packet from %s: %v", remote, err)
	case errors.As(err, &truncated):
		metrics.PacketsDiscardedTotal.Inc()
		log.Debug("%s: %v", remote, err)
	case errors.Is(err, io.EOF):
	default:
		log.Debug("read from %s: %v", remote, err)
	}
}
