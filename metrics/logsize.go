package metrics

import (
	"context"
	"time"

	"code.cloudfoundry.org/bytefmt"

	"github.com/alpacahq/aesdsocket/utils/log"
)

// Setter is an interface for prometheus metrics to improve unit-testability.
type Setter interface {
	Set(m float64)
}

// Sizer reports the current size of the shared log.
type Sizer interface {
	Size() int64
}

// LogSizeMonitor samples the size of the shared log at each interval and
// sets it as a prometheus metric.
type LogSizeMonitor struct {
	Setter   Setter
	Sizer    Sizer
	Interval time.Duration
}

// NewLogSizeMonitor returns a monitor that reports into LogSizeBytes.
func NewLogSizeMonitor(sizer Sizer, interval time.Duration) *LogSizeMonitor {
	return &LogSizeMonitor{Setter: LogSizeBytes, Sizer: sizer, Interval: interval}
}

// Run samples once immediately and then on every tick until ctx is done.
func (m *LogSizeMonitor) Run(ctx context.Context) {
	m.sample()

	t := time.NewTicker(m.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			size := m.sample()
			log.Debug("shared log size: %s", bytefmt.ByteSize(uint64(size)))
		}
	}
}

func (m *LogSizeMonitor) sample() int64 {
	size := m.Sizer.Size()
	m.Setter.Set(float64(size))
	return size
}
