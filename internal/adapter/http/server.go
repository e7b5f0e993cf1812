package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/covid-metrics-service/internal/adapter/chart"
	"github.com/couchcryptid/covid-metrics-service/internal/domain"
)

// SnapshotSource provides the live snapshot.
type SnapshotSource interface {
	Current() *domain.Snapshot
}

// ViewSource computes (or recalls) the view for a selection.
type ViewSource interface {
	View(sel domain.Selection) (domain.View, *domain.Snapshot, error)
}

// Server exposes health, readiness, metrics, and the view API.
type Server struct {
	httpServer *http.Server
	snapshots  SnapshotSource
	views      ViewSource
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the health, metrics, regions, view and chart routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, snapshots SnapshotSource, views ViewSource, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		snapshots: snapshots,
		views:     views,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/regions", s.handleRegions)
	mux.HandleFunc("GET /api/view", s.handleView)
	mux.HandleFunc("GET /chart", s.handleChartHTML)
	mux.HandleFunc("GET /chart.png", s.handleChartPNG)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleRegions(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshots.Current()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, domain.ErrNotReady)
		return
	}
	writeJSON(w, http.StatusOK, regionsResponse{
		SnapshotID: snap.ID,
		LoadedAt:   snap.LoadedAt,
		Regions:    snap.Table.Regions(),
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	view, snap, ok := s.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newViewResponse(view, snap))
}

func (s *Server) handleChartHTML(w http.ResponseWriter, r *http.Request) {
	view, snap, ok := s.view(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := chart.RenderHTML(&buf, view, "snapshot "+snap.ID+" loaded "+snap.LoadedAt.Format(time.RFC3339)); err != nil {
		s.logger.Error("render chart failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleChartPNG(w http.ResponseWriter, r *http.Request) {
	view, _, ok := s.view(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := chart.RenderPNG(&buf, view, chart.DefaultWidth, chart.DefaultHeight); err != nil {
		s.logger.Error("render chart failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

// view parses the selection and computes its view, writing the error response
// itself when it returns false.
func (s *Server) view(w http.ResponseWriter, r *http.Request) (domain.View, *domain.Snapshot, bool) {
	sel, err := parseSelection(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return domain.View{}, nil, false
	}
	view, snap, err := s.views.View(sel)
	switch {
	case err == nil:
		return view, snap, true
	case errors.Is(err, domain.ErrInvalidSelection):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		s.logger.Error("compute view failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	}
	return domain.View{}, nil, false
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
