package di

import (
	"context"

	"github.com/alpacahq/aesdsocket/bgworker"
	"github.com/alpacahq/aesdsocket/metrics"
	"github.com/alpacahq/aesdsocket/registry"
	"github.com/alpacahq/aesdsocket/timestamp"
	"github.com/alpacahq/aesdsocket/utils/log"
)

// GetBackground returns the group the background workers run in. Its
// context is canceled by the coordinator at shutdown.
func (c *Container) GetBackground() *bgworker.Group {
	if c.background != nil {
		return c.background
	}
	c.bgCtx, c.bgCancel = context.WithCancel(context.Background())
	c.background = &bgworker.Group{}
	return c.background
}

// StartBackgroundWorkers launches the tail stream hub, the timestamp
// emitter, the reaper and the log size monitor.
func (c *Container) StartBackgroundWorkers() {
	bg := c.GetBackground()
	lf := c.GetInitLogFile()

	bg.Go(c.bgCtx, "stream", c.GetStreamHub())

	if c.config.TimestampInterval > 0 {
		bg.Go(c.bgCtx, "timestamp", timestamp.NewEmitter(lf, c.GetStreamHub(), c.config.TimestampInterval))
	} else {
		log.Info("timestamp records disabled")
	}

	bg.Go(c.bgCtx, "reaper", registry.NewReaper(c.GetRegistry(), c.config.ReapInterval))

	if c.config.LogSizeMonitorInterval > 0 {
		bg.Go(c.bgCtx, "logsize", metrics.NewLogSizeMonitor(lf, c.config.LogSizeMonitorInterval))
	}
}
