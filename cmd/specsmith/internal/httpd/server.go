// Package httpd exposes the generation engine over HTTP: JSON endpoints for
// each pipeline stage, a WebSocket endpoint that streams full pipeline runs,
// and a small embedded web page for manual use.
package httpd

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/specsmith/specsmith/pkg/engine"
	"github.com/specsmith/specsmith/pkg/runstore"
)

//go:embed web
var webFS embed.FS

// Server routes HTTP requests to the engine.
type Server struct {
	eng *engine.Engine
	log *slog.Logger
	mux *http.ServeMux
}

// New creates a Server around the engine. A nil logger falls back to
// slog.Default.
func New(eng *engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{eng: eng, log: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/usage", s.handleUsage)

	s.mux.HandleFunc("POST /api/extract", s.handleExtract)
	s.mux.HandleFunc("POST /api/ui-model", s.handleUIModel)
	s.mux.HandleFunc("POST /api/gherkin", s.handleGherkin)
	s.mux.HandleFunc("POST /api/test-cases", s.handleTestCases)
	s.mux.HandleFunc("POST /api/feature-file", s.handleFeatureFile)
	s.mux.HandleFunc("POST /api/pipeline", s.handlePipeline)

	s.mux.HandleFunc("GET /api/runs", s.handleListRuns)
	s.mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	s.mux.HandleFunc("DELETE /api/runs/{id}", s.handleDeleteRun)

	s.mux.HandleFunc("GET /ws/pipeline", s.handlePipelineWS)

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
}

// ListenAndServe serves on the configured address until ctx is cancelled,
// then shuts down gracefully. TLS is used when the config carries a cert and
// key pair.
func (s *Server) ListenAndServe(ctx context.Context) error {
	sc := s.eng.Config().Server
	srv := &http.Server{
		Addr:              sc.Addr(),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if sc.TLS() {
			errCh <- srv.ListenAndServeTLS(sc.CertFile, sc.KeyFile)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, webFS, "web/index.html")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUsage(w http.ResponseWriter, _ *http.Request) {
	total := s.eng.Usage()
	writeJSON(w, http.StatusOK, map[string]int{
		"input_tokens":  total.InputTokens,
		"output_tokens": total.OutputTokens,
		"total_tokens":  total.Total(),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.eng.Runs().List()})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.eng.Runs().Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, runstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Runs().Delete(r.PathValue("id")); err != nil {
		if errors.Is(err, runstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
