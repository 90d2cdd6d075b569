// Package httpapi exposes the gateway over HTTP: extraction endpoints
// guarded by the admission gate, streaming endpoints backed by relay
// sessions, and introspection endpoints for health, logs and stats.
package httpapi

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mediagate/mediagate/internal/admission"
	"github.com/mediagate/mediagate/internal/logstore"
	"github.com/mediagate/mediagate/internal/orchestrator"
	"github.com/mediagate/mediagate/internal/progress"
)

// Server holds the wired gateway components behind the HTTP surface.
type Server struct {
	orch    *orchestrator.Orchestrator
	gate    *admission.Gate
	hub     *progress.Hub
	logs    *logstore.Store
	log     *logrus.Logger
	origins []string

	upstream *http.Client
	started  time.Time
	now      func() time.Time

	// streamSlots bounds concurrently running relay sessions. A full
	// channel means the gateway is at streaming capacity.
	streamSlots chan struct{}
}

const maxConcurrentStreams = 8

// NewServer wires the HTTP surface. logs and hub may be nil to disable
// the corresponding endpoints' data; log may be nil for the standard
// logger.
func NewServer(orch *orchestrator.Orchestrator, gate *admission.Gate, hub *progress.Hub, logs *logstore.Store, origins []string, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		orch:        orch,
		gate:        gate,
		hub:         hub,
		logs:        logs,
		log:         log,
		origins:     origins,
		upstream:    &http.Client{},
		started:     time.Now(),
		now:         time.Now,
		streamSlots: make(chan struct{}, maxConcurrentStreams),
	}
}

// acquireStreamSlot claims a relay slot without waiting. The returned
// release must be called when the session ends.
func (s *Server) acquireStreamSlot() (func(), bool) {
	select {
	case s.streamSlots <- struct{}{}:
		return func() { <-s.streamSlots }, true
	default:
		return nil, false
	}
}

// Routes assembles the full handler tree with middleware applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /formats", s.admit(http.HandlerFunc(s.handleFormats)))
	mux.Handle("POST /download", s.admit(http.HandlerFunc(s.handleDownload)))
	mux.Handle("GET /stream", s.admit(http.HandlerFunc(s.handleStream)))
	mux.Handle("GET /convert", s.admit(http.HandlerFunc(s.handleConvert)))

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /logs", s.handleLogs)
	mux.HandleFunc("GET /logs/file", s.handleLogsFile)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /progress", s.handleProgress)

	return s.withLogging(s.withCORS(mux))
}
