// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/tourtracker/internal/middleware"
)

// RouterConfig holds router-level limits.
type RouterConfig struct {
	// MaxBodyBytes caps every POST body.
	MaxBodyBytes int64

	// Middleware configures CORS and rate limiting of the web views.
	Middleware *ChiMiddlewareConfig
}

// Router builds the chi route tree around a Handler.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	maxBodyBytes  int64
}

// NewRouter creates a router.
func NewRouter(handler *Handler, cfg RouterConfig) *Router {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1024
	}
	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(cfg.Middleware),
		maxBodyBytes:  cfg.MaxBodyBytes,
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	h := router.handler
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)
	r.Use(router.chiMiddleware.RealIP())
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	// ========================
	// Game-Server Protocol
	// ========================
	// Shared-secret checked in the handlers; no rate limit, game servers
	// report every wave of every player.
	r.Group(func(r chi.Router) {
		r.Use(MaxBody(router.maxBodyBytes))
		r.Post("/", h.Ingest)
		r.Get("/", h.Query)
	})

	// ========================
	// Web Views
	// ========================
	r.Route("/tour", func(r chi.Router) {
		r.Use(router.chiMiddleware.CORS())
		r.Use(router.chiMiddleware.RateLimit("tour"))
		r.Use(APISecurityHeaders())

		r.Get("/global.csv", h.GlobalCSV)
		r.With(middleware.Compression).Get("/servers.csv", h.ServersCSV)
		r.With(middleware.Compression).Get("/vdf", h.VDF)
		r.With(middleware.Compression).Get("/{steam64}.csv", h.PlayerCSV)
		r.With(MaxBody(router.maxBodyBytes)).Post("/servers", h.ServerReport)
	})

	// ========================
	// Operational API
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())

		r.Get("/health/live", h.HealthLive)
		r.Get("/health/ready", h.HealthReady)
		r.Get("/log/stats", h.LogStats)
		r.Get("/tour/stats", h.TourStats)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
