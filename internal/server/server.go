// Package server provides the HTTP server and handlers.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bryan-buckman/feverd/internal/database"
	"github.com/bryan-buckman/feverd/internal/fever"
	"github.com/bryan-buckman/feverd/internal/model"
	"github.com/bryan-buckman/feverd/internal/rss"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "gopkg.in/inconshreveable/log15.v2"
)

// Options configures a Server.
type Options struct {
	FeverEnabled bool
	Favicons     fever.Favicons

	// Poller is started with the server when set.
	Poller *rss.Poller
}

// Server is the main HTTP server.
type Server struct {
	db     database.Store
	poller *rss.Poller
	router chi.Router
	logger log.Logger
}

// New creates a new server.
func New(db database.Store, opts Options, logger log.Logger) *Server {
	s := &Server{
		db:     db,
		poller: opts.Poller,
		logger: logger,
	}
	responder := fever.NewResponder(db, db, opts.Favicons, logger.New("module", "fever"))
	s.setupRoutes(fever.NewHandler(responder, opts.FeverEnabled, logger.New("module", "fever")))
	return s
}

func (s *Server) setupRoutes(feverHandler http.Handler) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Handle("/fever", feverHandler)
	r.Handle("/fever/", feverHandler)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	s.router = r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// shutdownTimeout bounds the graceful shutdown in Run.
const shutdownTimeout = 10 * time.Second

// Run starts the poller and serves on addr until ctx is cancelled, then
// shuts both down.
func (s *Server) Run(ctx context.Context, addr string) error {
	if s.poller != nil {
		s.poller.Start()
		defer s.poller.Stop()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("server starting", "address", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]interface{}{
		"status":   "ok",
		"database": s.db.DatabaseType(),
	}
	if _, err := s.db.GetSetting(model.SettingPollingInterval); err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.Error("health check failed", "error", err)
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// accessLog writes one record per request.
func accessLog(logger log.Logger) func(http.Handler) http.Handler {
	logger = logger.New("module", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				logger.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
