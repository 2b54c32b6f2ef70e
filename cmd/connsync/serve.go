package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Sternrassler/connsync/pkg/metrics"
	"github.com/Sternrassler/connsync/pkg/syncer"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// runner executes one sync run.
type runner interface {
	Run(ctx context.Context, req syncer.RunRequest) (syncer.Result, error)
}

// server exposes run triggering and the operational endpoints over HTTP.
type server struct {
	runner   runner
	redis    *redis.Client
	platform string
	runs     *registry

	// ctx bounds background runs; cancelled on shutdown.
	ctx context.Context
	wg  sync.WaitGroup
}

func newServer(ctx context.Context, r runner, rdb *redis.Client, platform string) *server {
	if r == nil {
		panic("runner cannot be nil")
	}
	return &server{
		runner:   r,
		redis:    rdb,
		platform: platform,
		runs:     newRegistry(),
		ctx:      ctx,
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(s.redis))
	r.Handle("/metrics", metrics.Handler())

	r.Post("/runs", s.handleStartRun)
	r.Get("/runs/{id}", s.handleGetRun)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// readyHandler reports 503 while the configured Redis is unreachable.
func readyHandler(rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rdb != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				http.Error(w, fmt.Sprintf("Redis not available: %v", err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

func (s *server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req syncer.RunRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode run request: %w", err))
		return
	}
	if req.RunID == "" {
		req.RunID = syncer.NewRunID()
	}
	if req.Platform == "" {
		req.Platform = s.platform
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := scopeOf(req).Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.runs.start(req)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	req.Progress = func(res syncer.Result) { s.runs.update(req, res) }

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		result, err := s.runner.Run(s.ctx, req)
		if err != nil {
			log.Warn().Err(err).Str("run_id", req.RunID).Str("status", string(result.Status)).Msg("Run failed")
		}
		s.runs.finish(req, result)
	}()

	w.Header().Set("Location", "/runs/"+req.RunID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = writeJSON(w, res)
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	res, err := s.runs.get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = writeJSON(w, res)
}

// wait blocks until every background run has finished.
func (s *server) wait() {
	s.wg.Wait()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = writeJSON(w, map[string]string{"error": err.Error()})
}

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve run triggers, health and metrics over HTTP",
		Long: `Serve listens on CONNSYNC_ADDR and exposes:

  POST /runs        start a run, body {"tenant","subject","platform","run_id","on_site"}
  GET  /runs/{id}   run status and counters
  GET  /health      liveness
  GET  /ready       readiness (Redis ping when configured)
  GET  /metrics     Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), root)
		},
	}
}

func serve(parent context.Context, root *rootOptions) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, root.cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := newServer(ctx, a.driver, a.redis, root.cfg.Platform)
	httpServer := &http.Server{
		Addr:              root.cfg.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", root.cfg.Addr).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	srv.wait()
	return nil
}
