// Package web exposes the import service over HTTP.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/web/middleware"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server is the HTTP front end of a core.Service.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server. ctx bounds the rate limiters' cleanup loops.
func NewServer(ctx context.Context, service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupRoutes(ctx)
	return s
}

func (s *Server) setupRoutes(ctx context.Context) {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Server.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)

	general, uploads := passThrough, passThrough
	if s.cfg.Rate.Enabled {
		general = newRateLimiter(ctx, s.cfg.Rate.RequestsPerMinute, time.Minute).middleware
		uploads = newRateLimiter(ctx, s.cfg.Rate.UploadLimit, time.Minute).middleware
	}

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(general)

		r.Get("/importers", s.handleListImporters)
		r.Get("/importers/{key}", s.handleGetImporter)

		r.Group(func(r chi.Router) {
			r.Use(uploads)
			r.Post("/sheets", s.handleListSheets)
			r.Post("/import/{key}", s.handleImport)
			r.Post("/preview/{key}", s.handlePreview)
		})

		r.Route("/runs/{id}", func(r chi.Router) {
			r.Get("/", s.handleProgress)
			r.Get("/events", s.handleProgressStream)
			r.Get("/result", s.handleResult)
			r.Post("/cancel", s.handleCancel)
			r.Get("/failed-rows", s.handleFailedRows)
		})
	})
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func passThrough(next http.Handler) http.Handler { return next }

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
