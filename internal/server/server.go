// Package server exposes the scanning pipeline over HTTP: a batch scan
// endpoint for recorded frame sequences, a WebSocket endpoint for live
// camera streams, health and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/disintegration/imaging"

	"github.com/scanforge/serialscan/internal/config"
	"github.com/scanforge/serialscan/internal/pipeline"
	"github.com/scanforge/serialscan/internal/validator"
	"github.com/scanforge/serialscan/internal/version"
)

// Server wires the pipeline to the HTTP surface.
type Server struct {
	cfg     config.ServerConfig
	pipe    *pipeline.Pipeline
	metrics *Metrics
}

// New creates a server around a built pipeline.
func New(cfg config.ServerConfig, pipe *pipeline.Pipeline, metrics *Metrics) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{cfg: cfg, pipe: pipe, metrics: metrics}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/scan", s.handleScan)
	mux.HandleFunc("GET /v1/scan/ws", s.handleWS)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// healthResponse is the /healthz body.
type healthResponse struct {
	Status   string   `json:"status"`
	Version  string   `json:"version"`
	Degraded []string `json:"degraded,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Version:  version.Version,
		Degraded: s.pipe.Degraded(),
	}
	if len(resp.Degraded) > 0 {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

// ScanResponse is the batch scan result.
type ScanResponse struct {
	Result validator.Result       `json:"result"`
	Stats  pipeline.StatsSnapshot `json:"stats"`
}

// handleScan scans a recorded frame sequence. The request is a multipart
// form whose "frames" parts are image files in capture order; the
// response is the session decision. Borderline decisions come back
// unresolved for the caller to confirm out of band.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.MaxFrameBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse multipart form: %w", err))
		return
	}
	files := r.MultipartForm.File["frames"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no frames provided"))
		return
	}

	frames := make([]pipeline.Frame, 0, len(files))
	base := time.Now()
	for i, header := range files {
		f, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("open frame %d: %w", i, err))
			return
		}
		img, err := imaging.Decode(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode frame %d: %w", i, err))
			return
		}
		interval := s.pipe.Config().MinFrameInterval
		frames = append(frames, pipeline.Frame{
			Image:     img,
			Timestamp: base.Add(time.Duration(i) * interval),
		})
	}

	sess := s.pipe.NewSession()
	start := time.Now()
	if err := sess.Start(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.sessionsStarted.Inc()

	for _, frame := range frames {
		sess.OnFrame(frame)
	}
	s.drain(r.Context(), sess, int64(len(frames)))
	sess.Stop()

	result, err := sess.Wait(r.Context())
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, err)
		return
	}
	stats := sess.Stats()
	s.metrics.observeSession(result, stats, time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, ScanResponse{Result: result, Stats: stats})
}

// drain waits until every pushed frame has been fully processed by the
// session worker, so Stop evaluates a complete buffer. FramesProcessed
// trails the stage walk; counting scanned frames instead would let Stop
// cancel the last frame's inference mid-flight.
func (s *Server) drain(ctx context.Context, sess *pipeline.Session, pushed int64) {
	tick := time.NewTicker(2 * time.Millisecond)
	defer tick.Stop()
	for {
		if sess.Stats().FramesProcessed >= pushed {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			return
		case <-tick.C:
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Response write failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
