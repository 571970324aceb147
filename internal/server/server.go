// Package server exposes the analysis pipeline over HTTP for front-ends that
// display scorecards, curves and overlays.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/keagan/adattention/internal/config"
	"github.com/keagan/adattention/internal/metrics"
	"github.com/keagan/adattention/internal/pipeline"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

// Analyzer runs one analysis. *pipeline.Pipeline satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, opts pipeline.AnalyzeOptions) (*pipeline.Result, error)
}

// Server serves the HTTP API and owns background analysis jobs
type Server struct {
	logger   zerolog.Logger
	cfg      *config.Config
	analyzer Analyzer
	store    *Store
	metrics  *metrics.Metrics

	// jobs outlive the request that started them but not the server
	jobCtx    context.Context
	cancelJob context.CancelFunc
	jobs      sync.WaitGroup
}

// New creates a server. Metrics may be nil.
func New(logger zerolog.Logger, cfg *config.Config, analyzer Analyzer, m *metrics.Metrics) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		logger:    logger.With().Str("component", "server").Logger(),
		cfg:       cfg,
		analyzer:  analyzer,
		store:     NewStore(),
		metrics:   m,
		jobCtx:    ctx,
		cancelJob: cancel,
	}
}

// Router builds the chi route tree
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(s.logger))
	r.Use(metrics.RequestMiddleware(s.metrics))

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/presets", s.handlePresets)
		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", s.handleSubmit)
			r.Get("/", s.handleList)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGet)
				r.Get("/files/{name}", s.handleFile)
			})
		})
	})
	return r
}

// Run listens on the configured address until ctx is cancelled, then drains
// connections and cancels running analyses.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Server.Addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.Info().
		Str("addr", s.cfg.Server.Addr).
		Str("data_dir", s.cfg.Server.DataDir).
		Msg("server starting")

	select {
	case err, ok := <-errCh:
		if ok {
			s.Close()
			return err
		}
	case <-ctx.Done():
		s.logger.Info().Msg("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()

	s.logger.Info().Msg("server stopped")
	return err
}

// Close cancels background analyses and waits for them to exit
func (s *Server) Close() {
	s.cancelJob()
	s.jobs.Wait()
}
