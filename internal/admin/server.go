// Package admin serves the monitor's query and control API over HTTP.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"robotops/internal/alerts"
	"robotops/internal/fleet"
	"robotops/internal/geometry"
	"robotops/internal/logging"
	"robotops/internal/monitor"
	"robotops/internal/stream"
	"robotops/internal/teleop"
)

var errBadRequest = errors.New("bad request")

// Server exposes a Monitor over HTTP.
type Server struct {
	Mon     *monitor.Monitor
	ingest  monitor.Ingester
	metrics http.Handler
	log     *slog.Logger
	mux     *http.ServeMux
}

// NewServer builds the route table. Events posted to /events go through ing,
// which defaults to the monitor itself; metrics defaults to promhttp.Handler().
func NewServer(mon *monitor.Monitor, ing monitor.Ingester, metrics http.Handler, logger *slog.Logger) *Server {
	if ing == nil {
		ing = mon
	}
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	s := &Server{Mon: mon, ingest: ing, metrics: metrics, log: logging.OrDefault(logger), mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics)

	s.mux.HandleFunc("GET /robots", s.handleRobots)
	s.mux.HandleFunc("GET /robots/{id}", s.handleRobot)
	s.mux.HandleFunc("GET /fleet/stats", s.handleFleetStats)

	s.mux.HandleFunc("GET /alerts", s.handleAlerts)
	s.mux.HandleFunc("GET /alerts/stats", s.handleAlertStats)
	s.mux.HandleFunc("GET /alerts/{id}", s.handleAlert)
	s.mux.HandleFunc("POST /alerts/{id}/dismiss", s.handleDismiss)

	s.mux.HandleFunc("GET /robots/{id}/feed/{viewer}", s.handleFeed)
	s.mux.HandleFunc("GET /robots/{id}/feed/{viewer}/frame", s.handleFrame)
	s.mux.HandleFunc("POST /robots/{id}/feed/{viewer}/{action}", s.handleFeedAction)

	s.mux.HandleFunc("GET /robots/{id}/teleop", s.handleTeleopStatus)
	s.mux.HandleFunc("DELETE /robots/{id}/teleop", s.handleTeleopRelease)
	s.mux.HandleFunc("POST /robots/{id}/teleop/{action}", s.handleTeleopAction)

	s.mux.HandleFunc("POST /events", s.handleEvent)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.log.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("admin server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "robots": len(s.Mon.Robots())})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev monitor.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		s.writeError(w, r, errors.Join(errBadRequest, err))
		return
	}
	if err := s.ingest.Ingest(logging.NewContext(r.Context(), s.log), ev); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, fleet.ErrNotFound),
		errors.Is(err, alerts.ErrNotFound),
		errors.Is(err, monitor.ErrFeedNotFound):
		return http.StatusNotFound
	case errors.Is(err, stream.ErrAlreadyOpen),
		errors.Is(err, stream.ErrInvalidTransition),
		errors.Is(err, monitor.ErrTeleopBusy),
		errors.Is(err, fleet.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, stream.ErrRetriesExhausted),
		errors.Is(err, teleop.ErrClosed),
		errors.Is(err, monitor.ErrMonitorClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, teleop.ErrTransmission):
		return http.StatusBadGateway
	case errors.Is(err, errBadRequest),
		errors.Is(err, geometry.ErrInvalidGeometry),
		errors.Is(err, alerts.ErrInvalidAlert),
		errors.Is(err, alerts.ErrInvalidQuery),
		errors.Is(err, monitor.ErrInvalidEvent),
		errors.Is(err, monitor.ErrUnknownKind),
		errors.Is(err, teleop.ErrInvalidDirection),
		errors.Is(err, fleet.ErrInvalidRobot):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
