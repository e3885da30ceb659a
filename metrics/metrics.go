package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	namespace = "aesd"
	subsystem = "socket"
)

var (
	// StartupTime stores how long the startup took (in seconds)
	StartupTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "startup_seconds",
		Help:      "Seconds taken by the startup",
	})

	// ConnectionsAcceptedTotal counts accepted client connections
	ConnectionsAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "connections_accepted_total",
		Help:      "Number of client connections accepted",
	})

	// ConnectionsActive is the number of connection workers still running
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "connections_active",
		Help:      "Number of connection workers that have not finished",
	})

	// AcceptErrorsTotal counts failed accept calls
	AcceptErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "accept_errors_total",
		Help:      "Number of accept calls that returned an error",
	})

	// PacketsAppendedTotal counts packets written to the shared log
	PacketsAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "packets_appended_total",
		Help:      "Number of complete packets appended to the shared log",
	})

	// PacketsDiscardedTotal counts unterminated packets dropped at close
	PacketsDiscardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "packets_discarded_total",
		Help:      "Number of partial packets discarded because the connection ended first",
	})

	// AppendedBytesTotal counts every byte appended, packets and timestamps
	AppendedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "appended_bytes_total",
		Help:      "Number of bytes appended to the shared log",
	})

	// TimestampRecordsTotal counts timestamp records appended
	TimestampRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "timestamp_records_total",
		Help:      "Number of timestamp records appended to the shared log",
	})

	// WorkersReapedTotal counts registry entries retired by the reaper
	WorkersReapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "workers_reaped_total",
		Help:      "Number of finished connection workers retired from the registry",
	})

	// LogSizeBytes is the current size of the shared log
	LogSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "log_size_bytes",
		Help:      "Size of the shared log in bytes",
	})

	// ResponseDuration stores how long it took to send the log back to a client
	ResponseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "response_duration_seconds",
		Help:      "Time spent streaming the shared log back to a client",
	})
)
