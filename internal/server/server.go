// Package server exposes the briefing pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/trendbrief/internal/briefing"
	"github.com/ppiankov/trendbrief/internal/generate"
	"github.com/ppiankov/trendbrief/internal/model"
)

// maxBodyBytes caps briefing request payloads
const maxBodyBytes = 1 << 20

// Briefer runs briefings; *briefing.Service implements it
type Briefer interface {
	Run(ctx context.Context, req briefing.Request, sink generate.Sink) (*model.BriefingReport, error)
	Preview(ctx context.Context, req briefing.Request) (*briefing.Preview, error)
}

// Server is the trendbrief HTTP API
type Server struct {
	briefer Briefer
	router  *gin.Engine
	cfg     model.ServerConfig
	version string
	logger  *slog.Logger
}

// New creates a server and registers its routes
func New(b Briefer, cfg model.ServerConfig, version string, logger *slog.Logger) *Server {
	router := gin.New()

	s := &Server{
		briefer: b,
		router:  router,
		cfg:     cfg,
		version: version,
		logger:  logger.With("component", "server"),
	}

	router.Use(gin.Recovery(), s.requestLogger())
	router.GET("/health", s.handleHealth)

	api := router.Group("/api/v1")
	{
		api.POST("/briefing", s.handleBriefing)
		api.POST("/briefing/preview", s.handlePreview)
	}

	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight requests
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr, "version", s.version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
