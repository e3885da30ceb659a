package frontend

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alpacahq/aesdsocket/utils"
	"github.com/alpacahq/aesdsocket/utils/log"
)

type HeartbeatMessage struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	GitHash     string `json:"git_hash"`
	Uptime      string `json:"uptime"`
	Connections int    `json:"connections"`
}

// StatusSource is what the heartbeat reports on.
type StatusSource interface {
	Accepting() bool
	Running() int
}

type serverStatus struct {
	*Server
}

func (s serverStatus) Running() int { return s.registry.Running() }

// Status adapts a Server to StatusSource.
func Status(s *Server) StatusSource {
	return serverStatus{s}
}

// UtilityAPI serves heartbeat, metrics, profiling and the tail stream over HTTP.
type UtilityAPI struct {
	startTime time.Time
	status    StatusSource
	stream    http.Handler

	mu  sync.Mutex
	srv *http.Server
}

// NewUtilityAPIHandlers returns the utility API. stream may be nil.
func NewUtilityAPIHandlers(startTime time.Time, status StatusSource, stream http.Handler) *UtilityAPI {
	return &UtilityAPI{startTime: startTime, status: status, stream: stream}
}

// Handler builds the route table.
func (uah *UtilityAPI) Handler() http.Handler {
	mux := http.NewServeMux()

	// heartbeat
	mux.HandleFunc("/heartbeat", uah.heartbeat)

	// monitoring
	mux.Handle("/metrics", promhttp.Handler())

	// tail stream
	if uah.stream != nil {
		mux.Handle("/ws", uah.stream)
	}

	// profiling
	mux.HandleFunc("/pprof/", pprof.Index)
	mux.HandleFunc("/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/pprof/profile", pprof.Profile)
	mux.HandleFunc("/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/pprof/trace", pprof.Trace)
	mux.Handle("/pprof/heap", pprof.Handler("heap"))
	mux.Handle("/pprof/goroutine", pprof.Handler("goroutine"))

	return mux
}

// Serve serves the utility API on ln until Shutdown.
func (uah *UtilityAPI) Serve(ln net.Listener) error {
	uah.mu.Lock()
	uah.srv = &http.Server{Handler: uah.Handler(), ReadHeaderTimeout: 10 * time.Second}
	srv := uah.srv
	uah.mu.Unlock()

	log.Info("utility API listening on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "utility API")
	}
	return nil
}

// ListenAndServe binds url and serves the utility API.
func (uah *UtilityAPI) ListenAndServe(url string) error {
	ln, err := net.Listen("tcp", url)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", url)
	}
	return uah.Serve(ln)
}

// Shutdown stops the HTTP server. Hijacked websocket connections are
// closed by the stream hub.
func (uah *UtilityAPI) Shutdown(ctx context.Context) error {
	uah.mu.Lock()
	srv := uah.srv
	uah.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (uah *UtilityAPI) heartbeat(rw http.ResponseWriter, _ *http.Request) {
	msg := HeartbeatMessage{
		Status:      "serving",
		Version:     utils.Tag,
		GitHash:     utils.GitHash,
		Uptime:      time.Since(uah.startTime).String(),
		Connections: uah.status.Running(),
	}
	code := http.StatusOK
	if !uah.status.Accepting() {
		msg.Status = "shutting down"
		code = http.StatusServiceUnavailable
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	if err := json.NewEncoder(rw).Encode(msg); err != nil {
		log.Error("Failed to write heartbeat message - Error: %v", err)
	}
}
