package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kidney-match-server/internal/domain"
	"github.com/kidney-match-server/internal/kidneymatch"
	"github.com/kidney-match-server/internal/metrics"
	"github.com/kidney-match-server/internal/middleware"
	"github.com/kidney-match-server/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

const defaultShutdownTimeout = 15 * time.Second

// Matcher is the matching surface the HTTP layer depends on.
type Matcher interface {
	MatchDonors(ctx context.Context, query service.MatchQuery) (*service.MatchPage, error)
	Evaluate(ctx context.Context, donorRaw, patientRaw map[string]any) domain.EvaluationResult
	ListBloodDonors(ctx context.Context, location string, page, perPage int, path string) (*service.BloodDonorPage, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Dependencies are the collaborators wired into the HTTP server. Matches and Metrics may
// be nil; the kidney match routes are not registered without a store.
type Dependencies struct {
	Matching Matcher
	Matches  kidneymatch.Store
	Metrics  *metrics.Metrics
	Health   map[string]HealthCheck
	Logger   *logrus.Logger
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	deps          Dependencies
	auth          *middleware.Authenticator
	router        *gin.Engine
	server        *http.Server
	logger        *logrus.Logger
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Dependencies) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	switch {
	case gin.Mode() == gin.TestMode:
	case cfg.Logging.Level == "debug":
		gin.SetMode(gin.DebugMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestTimeout(cfg.Server.WriteTimeout))

	server := &Server{
		configManager: configManager,
		deps:          deps,
		auth:          middleware.NewAuthenticator(cfg.Auth),
		router:        router,
		logger:        logger,
	}

	// Setup routes
	server.setupRoutes(cfg)

	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{"addr": addr, "tls": cfg.TLSEnabled}).Info("HTTP server listening")

		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.WithField("timeout", timeout.String()).Info("Shutting down HTTP server")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes(cfg *domain.Config) {
	s.router.GET("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	v1.Use(s.auth.Optional())
	if cfg.RateLimit.Enabled {
		v1.Use(middleware.NewRateLimiter(cfg.RateLimit, s.logger).Middleware())
	}

	public := v1.Group("/public")
	{
		public.GET("/matching/donors", s.handleMatchDonors)
		public.GET("/donors", s.handleBloodDonors)
	}

	v1.POST("/matching/evaluate", s.handleEvaluate)

	if s.deps.Matches != nil {
		matches := v1.Group("/kidney-matches", s.auth.Required())
		{
			matches.GET("", s.handleListMatches)
			matches.POST("", s.handleCreateMatch)
			matches.GET("/:id", s.handleGetMatch)
			matches.PUT("/:id", s.handleUpdateMatch)
			matches.DELETE("/:id", s.handleDeleteMatch)
		}
	}
}

// handleHealth reports overall status and each dependency check.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	checks := make(map[string]string, len(s.deps.Health))
	for name, check := range s.deps.Health {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"checks":    checks,
	})
}
