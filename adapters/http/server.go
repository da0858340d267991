// Package http serves a preview of the generated client over HTTP: the
// symbol table, the last build and the rendered modules.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/irusland/pyroto/adapters/metrics"
	"github.com/irusland/pyroto/core/build"
	"github.com/irusland/pyroto/core/events"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Builder is the part of the build pipeline the server drives.
type Builder interface {
	Config() build.Config
	Plan() (*build.Plan, error)
	Run(ctx context.Context) (*build.Result, error)
}

// Deps contains dependencies for a Server. Bus and Metrics are optional.
type Deps struct {
	Pipeline Builder
	Bus      *events.Bus
	Metrics  *metrics.Collector
}

// Server is the preview server.
type Server struct {
	pipeline Builder
	metrics  *metrics.Collector
	logger   zerolog.Logger

	mu   sync.RWMutex
	last *build.Result
}

// NewServer creates a server. With a bus it follows builds started
// elsewhere, e.g. by the watcher.
func NewServer(deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		pipeline: deps.Pipeline,
		metrics:  deps.Metrics,
		logger:   logger,
	}
	if deps.Bus != nil {
		deps.Bus.Subscribe(events.BuildFinished, func(_ context.Context, e events.Event) error {
			if res, ok := e.Data.(*build.Result); ok {
				s.remember(res)
			}
			return nil
		})
	}
	return s
}

// LastResult returns the most recent build, or nil.
func (s *Server) LastResult() *build.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Server) remember(res *build.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || !res.StartedAt.Before(s.last.StartedAt) {
		s.last = res
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(NewLoggingMiddleware(s.logger))
	if s.metrics != nil {
		r.Use(NewMetricsMiddleware(s.metrics))
	}

	r.Get("/healthz", s.health)
	r.Get("/_symbols", s.symbols)
	r.Get("/_modules", s.modules)
	r.Get("/_modules/{module}", s.module)
	r.Post("/_build", s.build)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Gatherer(), promhttp.HandlerOpts{}))
	}

	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("preview server listening")
		errCh <- srv.ListenAndServe()
	}()

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

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) symbols(w http.ResponseWriter, r *http.Request) {
	plan, err := s.pipeline.Plan()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	failed := make([]string, 0, len(plan.Failed))
	for _, me := range plan.Failed {
		failed = append(failed, me.Error())
	}
	sort.Strings(failed)

	writeJSON(w, http.StatusOK, map[string]any{
		"count":       plan.Table.Len(),
		"fingerprint": plan.Table.Fingerprint(),
		"symbols":     build.Symbols(plan.Table),
		"errors":      failed,
	})
}

type moduleSummary struct {
	Module       string       `json:"module"`
	Output       string       `json:"output"`
	Status       build.Status `json:"status"`
	Declarations []string     `json:"declarations"`
	Imports      int          `json:"imports"`
	Error        string       `json:"error,omitempty"`
}

func (s *Server) modules(w http.ResponseWriter, r *http.Request) {
	res := s.LastResult()
	if res == nil {
		writeJSON(w, http.StatusOK, map[string]any{"run_id": nil, "modules": []moduleSummary{}})
		return
	}

	out := make([]moduleSummary, len(res.Modules))
	for i, m := range res.Modules {
		out[i] = moduleSummary{
			Module:       m.Module,
			Output:       m.OutputPath,
			Status:       m.Status,
			Declarations: m.Declarations,
			Imports:      m.Imports,
			Error:        m.Error,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": res.RunID, "modules": out})
}

var modulePath = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

func (s *Server) module(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "module")
	if !modulePath.MatchString(name) {
		writeError(w, http.StatusBadRequest, errors.New("invalid module path"))
		return
	}

	path := filepath.Join(s.pipeline.Config().OutputDir, filepath.FromSlash(build.OutputFile(name)))
	if res := s.LastResult(); res != nil {
		if rep, ok := res.Module(name); ok && rep.Status != build.StatusFailed {
			path = rep.OutputPath
		}
	}

	src, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, errors.New("module not generated: "+name))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/x-python; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(src)))
	w.WriteHeader(http.StatusOK)
	w.Write(src)
}

func (s *Server) build(w http.ResponseWriter, r *http.Request) {
	res, err := s.pipeline.Run(r.Context())
	if res == nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.remember(res)

	status := http.StatusOK
	if err != nil {
		// per-module failures still produce a complete result
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
