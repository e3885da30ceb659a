package registry

import (
	"context"
	"time"

	"github.com/alpacahq/aesdsocket/metrics"
	"github.com/alpacahq/aesdsocket/utils/log"
)

// Reaper periodically retires finished workers from a Registry.
type Reaper struct {
	Registry *Registry
	Interval time.Duration
}

// NewReaper returns a Reaper for r that wakes every interval.
func NewReaper(r *Registry, interval time.Duration) *Reaper {
	return &Reaper{Registry: r, Interval: interval}
}

// Run reaps on every tick until ctx is done, then makes a final pass.
func (rp *Reaper) Run(ctx context.Context) {
	t := time.NewTicker(rp.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			rp.reap()
			log.Debug("reaper stopped")
			return
		case <-t.C:
			rp.reap()
		}
	}
}

func (rp *Reaper) reap() {
	reaped := rp.Registry.Reap()
	for _, e := range reaped {
		log.Debug("reaped worker %d (%s) after %v", e.ID, e.Remote, time.Since(e.Started))
	}
	metrics.WorkersReapedTotal.Add(float64(len(reaped)))
}
