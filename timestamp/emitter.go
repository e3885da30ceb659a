// Package timestamp appends a wall clock record to the shared log on a
// fixed interval.
package timestamp

import (
	"context"
	"time"

	"github.com/alpacahq/aesdsocket/metrics"
	"github.com/alpacahq/aesdsocket/utils/log"
)

const (
	// Prefix starts every timestamp record.
	Prefix = "timestamp:"
	// Layout is the calendar time format of a record, e.g. "Sat Oct 17 09:30:00 2026".
	Layout = "Mon Jan 02 15:04:05 2006"
	// Source names timestamp records on the tail stream.
	Source = "timestamp"
)

// Appender is the write side of the shared log.
type Appender interface {
	Append(p []byte) error
}

// Publisher receives a copy of every record after it is appended.
type Publisher interface {
	Push(source string, data []byte)
}

// Format renders the record for t, including the trailing newline.
func Format(t time.Time) []byte {
	return []byte(Prefix + t.Format(Layout) + "\n")
}

// Emitter is the background task that writes timestamp records.
type Emitter struct {
	Log       Appender
	Publisher Publisher
	Interval  time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewEmitter returns an Emitter writing to l every interval.
func NewEmitter(l Appender, pub Publisher, interval time.Duration) *Emitter {
	return &Emitter{Log: l, Publisher: pub, Interval: interval, Now: time.Now}
}

// Run sleeps for an interval, then appends a record unless ctx is done,
// and repeats until ctx is done.
func (e *Emitter) Run(ctx context.Context) {
	t := time.NewTicker(e.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("timestamp emitter stopped")
			return
		case <-t.C:
			// a tick and a cancel can be ready together
			if ctx.Err() != nil {
				continue
			}
			e.emit()
		}
	}
}

func (e *Emitter) emit() {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	rec := Format(now())
	if err := e.Log.Append(rec); err != nil {
		log.Error("failed to append timestamp record: %v", err)
		return
	}
	metrics.TimestampRecordsTotal.Inc()
	metrics.AppendedBytesTotal.Add(float64(len(rec)))
	if e.Publisher != nil {
		e.Publisher.Push(Source, rec)
	}
}
