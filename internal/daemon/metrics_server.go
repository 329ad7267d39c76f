package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tailor/internal/logging"
)

type metricsServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newMetricsServer(bind string, gatherer prometheus.Gatherer, d *Daemon, logger *slog.Logger) *metricsServer {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil
	}
	srv := &metricsServer{bind: bind, logger: logger, daemon: d}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", srv.handleHealth)
	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *metricsServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("metrics server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.log().Info("metrics server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *metricsServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.listener = nil
}

// address returns the bound listener address, or the configured bind before start.
func (s *metricsServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

// healthReport is the /healthz body. The endpoint answers 503 while the
// poller is stopped.
type healthReport struct {
	Running  bool   `json:"running"`
	LastPoll string `json:"lastPoll,omitempty"`
	Stalled  int    `json:"stalled"`
}

func (s *metricsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var report healthReport
	if s.daemon != nil {
		summary := s.daemon.Status(r.Context()).Workflow
		report.Running = s.daemon.Running()
		report.Stalled = len(summary.Stalled)
		if !summary.LastPoll.IsZero() {
			report.LastPoll = summary.LastPoll.UTC().Format(time.RFC3339)
		}
	}
	code := http.StatusOK
	if !report.Running {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

func (s *metricsServer) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String("component", "metrics"))
}
