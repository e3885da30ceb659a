package frontend

import (
	"context"
	"sync"
	"time"

	"code.cloudfoundry.org/bytefmt"

	"github.com/alpacahq/aesdsocket/bgworker"
	"github.com/alpacahq/aesdsocket/utils/log"
)

// Destroyer is the shared log as seen by the shutdown sequence.
type Destroyer interface {
	Size() int64
	Remove() error
}

// Coordinator stops the server and its background workers in order and
// removes the shared log last.
type Coordinator struct {
	Server      *Server
	Log         Destroyer
	Background  *bgworker.Group
	StopWorkers context.CancelFunc
	Utilities   *UtilityAPI
	GracePeriod time.Duration

	once sync.Once
	err  error
	done chan struct{}
}

// NewCoordinator wires the shutdown sequence. stop cancels the context the
// background group runs under; utilities may be nil.
func NewCoordinator(s *Server, l Destroyer, bg *bgworker.Group, stop context.CancelFunc,
	utilities *UtilityAPI, grace time.Duration,
) *Coordinator {
	return &Coordinator{
		Server:      s,
		Log:         l,
		Background:  bg,
		StopWorkers: stop,
		Utilities:   utilities,
		GracePeriod: grace,
		done:        make(chan struct{}),
	}
}

// Shutdown runs the termination sequence once; later calls wait for the
// first one and return its result.
//
//  1. set the shutdown flag and stop accepting
//  2. stop the background workers and wait for them
//  3. wait for in-flight connections, interrupting reads after the grace period
//  4. retire the remaining registry entries
//  5. stop the utility server and remove the shared log
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		defer close(c.done)
		c.err = c.shutdown(ctx)
	})
	<-c.done
	return c.err
}

// Done is closed once Shutdown has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) shutdown(ctx context.Context) error {
	c.Server.StopAccepting()

	if c.StopWorkers != nil {
		c.StopWorkers()
	}
	if c.Background != nil {
		if err := c.Background.Wait(ctx); err != nil {
			log.Error("background workers did not stop: %v", err)
			return err
		}
	}

	if err := c.Server.Drain(ctx, c.GracePeriod); err != nil {
		log.Error("connections did not drain: %v", err)
		return err
	}
	c.Server.Registry().Reap()

	if c.Utilities != nil {
		if err := c.Utilities.Shutdown(ctx); err != nil {
			log.Error("failed to stop utility server: %v", err)
		}
	}

	size := c.Log.Size()
	if err := c.Log.Remove(); err != nil {
		log.Error("failed to remove shared log: %v", err)
		return err
	}
	log.Info("removed shared log (%s)", bytefmt.ByteSize(uint64(size)))
	return nil
}
