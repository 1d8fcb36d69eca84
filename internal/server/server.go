// Package server exposes clustering over HTTP with a live dashboard.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/procluster/internal/config"
	"github.com/thebtf/procluster/internal/db/gorm"
	"github.com/thebtf/procluster/internal/input"
	"github.com/thebtf/procluster/internal/runner"
	"github.com/thebtf/procluster/internal/server/sse"
	"github.com/thebtf/procluster/internal/watcher"
)

// Options configures a Service. Runner.Runs may be nil, in which case
// nothing is stored and the run endpoints answer 503.
type Options struct {
	Config  *config.Config
	Runner  *runner.Runner
	Version string
}

// Service is the HTTP front end.
type Service struct {
	version        string
	config         *config.Config
	runner         *runner.Runner
	runStore       *gorm.RunStore
	sseBroadcaster *sse.Broadcaster
	router         chi.Router
	server         *http.Server
	watcher        *watcher.Watcher
	watching       string
	ctx            context.Context
	cancel         context.CancelFunc
	startTime      time.Time
	ready          atomic.Bool
	mu             sync.Mutex
}

// New creates a Service with its routes registered.
func New(opts Options) *Service {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	r := opts.Runner
	if r == nil {
		r = &runner.Runner{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		version:        opts.Version,
		config:         cfg,
		runner:         r,
		runStore:       r.Runs,
		sseBroadcaster: sse.NewBroadcaster(),
		router:         chi.NewRouter(),
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
	}
	svc.setupRoutes()
	svc.ready.Store(true)
	return svc
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/", s.serveIndex)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/cluster", s.handleCluster)
		r.Get("/events", s.sseBroadcaster.HandleSSE)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Delete("/runs/{id}", s.handleDeleteRun)
		r.Get("/runs/{id}/dendrogram", s.handleDendrogram)
	})
}

// Handler returns the router.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Broadcaster returns the SSE broadcaster.
func (s *Service) Broadcaster() *sse.Broadcaster {
	return s.sseBroadcaster
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Service) ListenAndServe(ctx context.Context, addr string) error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("version", s.version).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops the watcher and the HTTP server.
func (s *Service) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	s.cancel()

	s.mu.Lock()
	w, srv := s.watcher, s.server
	s.mu.Unlock()

	if w != nil {
		if err := w.Stop(); err != nil {
			log.Warn().Err(err).Msg("Stopping watcher failed")
		}
	}
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Watch re-clusters path (a CSV file or a directory of them) whenever it
// changes and publishes each outcome to SSE clients. It replaces any earlier
// watch; a failed call leaves the current one in place.
func (s *Service) Watch(path string) error {
	w, err := watcher.New(path, func(changed string) {
		s.Recluster(s.ctx, changed)
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.watcher
	s.watcher = w
	s.watching = path
	s.mu.Unlock()

	if prev != nil {
		if err := prev.Stop(); err != nil {
			log.Warn().Err(err).Msg("Stopping replaced watcher failed")
		}
	}
	return nil
}

// Recluster loads path, runs it with the configured options and publishes
// the outcome. Failures are published as error events.
func (s *Service) Recluster(ctx context.Context, path string) {
	records, err := input.Load(path)
	if err == nil {
		var out *runner.Outcome
		out, err = s.runner.Execute(ctx, path, records, s.config.PipelineOptions())
		if err == nil {
			s.sseBroadcaster.Publish(sse.Event{
				Type:   sse.EventRun,
				Source: path,
				Run:    out.Summary,
				Labels: out.Result.Assignment.Map(),
			})
			return
		}
	}

	log.Error().Err(err).Str("path", path).Msg("Re-clustering failed")
	s.sseBroadcaster.Publish(sse.Event{Type: sse.EventError, Source: path, Error: err.Error()})
}
