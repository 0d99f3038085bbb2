/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/limitgate/internal/config"
	"github.com/friendsincode/limitgate/internal/db"
	"github.com/friendsincode/limitgate/internal/events"
	"github.com/friendsincode/limitgate/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	deps       *Deps

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	deps, err := Wire(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	srv := NewWithDeps(cfg, deps, logger)
	srv.startBackgroundWorkers()
	return srv, nil
}

// NewWithDeps builds the router around already wired dependencies. No
// background workers are started.
func NewWithDeps(cfg *config.Config, deps *Deps, logger zerolog.Logger) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("limitgate-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(30 * time.Second))

	srv := &Server{
		cfg:    cfg,
		logger: logger.With().Str("component", "server").Logger(),
		router: router,
		deps:   deps,
	}
	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request through zerolog.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "http").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ev := logger.Info()
			if status >= http.StatusInternalServerError {
				ev = logger.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops background workers and releases owned resources.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	return s.deps.Close()
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.deps.DB != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					db.UpdateConnectionMetrics(s.deps.DB)
				}
			}
		}()
	}

	if s.deps.Audit != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.deps.Audit.Start(ctx)
		}()
	}

	if s.deps.PolicyFile != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			err := s.deps.PolicyFile.Watch(ctx, func() {
				if s.deps.Cache != nil {
					if err := s.deps.Cache.FlushAll(ctx); err != nil {
						s.logger.Warn().Err(err).Msg("flush policy cache after reload failed")
					}
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("policy file watcher exited")
			}
		}()
	}

	if s.deps.Cache != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.runCacheInvalidationListener(ctx)
		}()
	}

	if s.deps.Relay != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.deps.Relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("event relay exited")
			}
		}()
	}
}

// invalidator is implemented by policy.Cached.
type invalidator interface {
	Invalidate(ctx context.Context, deviceID string) error
}

// runCacheInvalidationListener drops cached policies when they are updated.
func (s *Server) runCacheInvalidationListener(ctx context.Context) {
	inv, ok := s.deps.Policies.(invalidator)
	if !ok {
		return
	}

	updated := s.deps.Bus.Subscribe(events.EventPolicyUpdated)
	defer s.deps.Bus.Unsubscribe(events.EventPolicyUpdated, updated)

	s.logger.Info().Msg("cache invalidation listener started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cache invalidation listener stopped")
			return

		case payload := <-updated:
			deviceID, _ := payload["device_id"].(string)
			if deviceID == "" {
				continue
			}
			s.logger.Debug().Str("device_id", deviceID).Msg("invalidating policy cache (policy updated)")
			if err := inv.Invalidate(ctx, deviceID); err != nil {
				s.logger.Warn().Err(err).Str("device_id", deviceID).Msg("policy cache invalidation failed")
			}
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := `{"status":"ok"`
		if s.deps.Cache != nil {
			if s.deps.Cache.IsAvailable() {
				response += `,"cache":"up"`
			} else {
				response += `,"cache":"down"`
			}
		}
		response += `}`
		_, _ = w.Write([]byte(response))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.deps.API.Routes(s.router)
}
