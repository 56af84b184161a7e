// Package web provides the HTTP server for the chunked import endpoint.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/refimport/internal/config"
	"github.com/JonMunkholm/refimport/internal/schools"
	mw "github.com/JonMunkholm/refimport/internal/web/middleware"
)

// ChunkUploadPath is the route of the schools import endpoint.
const ChunkUploadPath = "/api/schools/upload/chunks"

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Processor *schools.Processor
	Limiter   *schools.Limiter
	// DB is optional; without it health reports only the process.
	DB     Pinger
	Logger *slog.Logger
}

// Server is the HTTP server for the import endpoint.
type Server struct {
	cfg       *config.Config
	processor *schools.Processor
	limiter   *schools.Limiter
	db        Pinger
	logger    *slog.Logger

	router *chi.Mux
	server *http.Server

	// stop ends background work started by middleware.
	stop context.CancelFunc
}

// NewServer builds the router for cfg and deps.
func NewServer(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = schools.NewLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)
	}

	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		processor: deps.Processor,
		limiter:   limiter,
		db:        deps.DB,
		logger:    logger,
		router:    chi.NewRouter(),
		stop:      stop,
	}
	s.setupMiddleware(ctx)
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware(ctx context.Context) {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Server.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(mw.RateLimiter(ctx, mw.RateLimitConfig{
			RequestsPerSecond: s.cfg.Rate.RequestsPerSecond,
			Burst:             s.cfg.Rate.Burst,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/upload/status", s.handleUploadStatus)
		r.Post("/import/preview", s.handlePreview)

		r.With(mw.APIKeyAuth(s.cfg.Security.APIKeys)).
			Post("/schools/upload/chunks", s.handleChunkUpload)
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	s.logger.Info("server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown waits for in-flight chunks, then stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.stop()

	if st := s.limiter.Status(); st.Active > 0 {
		s.logger.Info("waiting for chunks to finish", "active", st.Active)
		if err := s.limiter.Drain(ctx); err != nil {
			s.logger.Warn("chunks did not finish in time", "error", err)
		}
	}

	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
