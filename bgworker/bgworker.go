// Package bgworker runs the long-lived background tasks of the server.
//
// Background workers are started before the listener accepts connections
// and run under their own goroutine until the shutdown context is canceled.
// A worker must return promptly once its context is done; the shutdown
// sequence waits for all of them before the shared log is removed.
package bgworker

import (
	"context"
	"sync"

	"github.com/alpacahq/aesdsocket/utils/log"
)

// BgWorker implements Run(). It will be running under a separate goroutine.
type BgWorker interface {
	Run(ctx context.Context)
}

// Func adapts a plain function to BgWorker.
type Func func(ctx context.Context)

func (f Func) Run(ctx context.Context) { f(ctx) }

// Group starts named workers and waits for them to exit.
type Group struct {
	wg sync.WaitGroup
}

// Go runs w in a new goroutine.
func (g *Group) Go(ctx context.Context, name string, w BgWorker) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		log.Debug("started background worker %s", name)
		w.Run(ctx)
		log.Debug("background worker %s exited", name)
	}()
}

// Wait blocks until every started worker has returned or ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
