// Package server exposes jobs, results and exports over HTTP with gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/caseextract/internal/llm"
	"github.com/ppiankov/caseextract/internal/logger"
	"github.com/ppiankov/caseextract/internal/metrics"
	"github.com/ppiankov/caseextract/internal/model"
	"github.com/ppiankov/caseextract/internal/pipeline"
	"github.com/ppiankov/caseextract/internal/store"
)

// Server serves the caseextract API
type Server struct {
	config    model.ServerConfig
	processor *pipeline.Processor
	store     store.Store
	provider  llm.Provider
	metrics   *metrics.Metrics
	log       logger.Logger
	router    *gin.Engine
}

// Deps are the collaborators a Server routes requests to
type Deps struct {
	Processor *pipeline.Processor
	Store     store.Store
	Provider  llm.Provider
	Metrics   *metrics.Metrics
	Logger    logger.Logger
}

// New builds a Server and its router
func New(cfg model.ServerConfig, deps Deps) *Server {
	s := &Server{
		config:    cfg,
		processor: deps.Processor,
		store:     deps.Store,
		provider:  deps.Provider,
		metrics:   deps.Metrics,
		log:       deps.Logger,
	}
	if s.log == nil {
		s.log = logger.NewLogger(logger.DefaultConfig())
	}
	if s.config.PageSize <= 0 {
		s.config.PageSize = 10
	}
	s.buildRouter()
	return s
}

func (s *Server) buildRouter() {
	router := gin.New()
	router.MaxMultipartMemory = s.config.MaxUploadBytes
	router.Use(LoggerMiddleware(s.log))
	router.Use(RecoveryMiddleware(s.log))

	router.GET("/healthz", s.health)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := router.Group("/api")
	{
		api.GET("/prompt/default", s.defaultPrompt)
		api.GET("/test-api", s.testAPI)

		jobs := api.Group("/jobs")
		jobs.POST("", s.createJob)
		jobs.GET("", s.listJobs)
		// "latest" is accepted wherever a job id is
		jobs.GET("/:id", s.getJob)
		jobs.POST("/:id/process", s.processJob)
		jobs.GET("/:id/results", s.results)
		jobs.GET("/:id/summary", s.summary)
		jobs.GET("/:id/export.xlsx", s.export)
	}

	s.router = router
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on the configured address until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Addr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.config.ReadTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	s.log.Debug("received shutdown signal, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("server shutdown completed")
	return nil
}
