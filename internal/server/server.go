/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes the playback control API: manual switch,
// status snapshots, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_switch/internal/playlist"
	"github.com/friendsincode/grimnir_switch/internal/telemetry"
)

// Controller is the playback surface the API drives.
type Controller interface {
	Switch()
	Status() playlist.Status
}

// Server bundles the HTTP control API.
type Server struct {
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	controller Controller
	metrics    *telemetry.Metrics
}

// New constructs the server and wires routes.
func New(bind string, port int, ctrl Controller, metrics *telemetry.Metrics, logger zerolog.Logger) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("grimnir-switch-api"))
	router.Use(telemetry.MetricsMiddleware(metrics))

	s := &Server{
		logger:     logger.With().Str("component", "server").Logger(),
		router:     router,
		controller: ctrl,
		metrics:    metrics,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", bind, port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
	s.configureRoutes()
	return s
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/switch", s.handleSwitch)
		r.Get("/status", s.handleStatus)
	})
}

// handleSwitch queues a manual advance. The advance is asynchronous;
// 202 means the request was accepted, not that the crossfade happened.
func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	s.controller.Switch()
	s.logger.Info().Str("remote", r.RemoteAddr).Msg("manual switch requested")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"status":"accepted"}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.controller.Status()); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode status")
	}
}

// Router returns the configured router, mainly for tests.
func (s *Server) Router() chi.Router { return s.router }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("control api listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
