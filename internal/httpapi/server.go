// Package httpapi serves the knowledge workflows and the generation runner over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"genflow/internal/health"
	"genflow/internal/httpapi/middleware"
	"genflow/internal/ledger"
	"genflow/internal/mcpserver"
	"genflow/internal/shared/logging"
)

// RunHistory persists and lists finished runs.
type RunHistory interface {
	Record(ctx context.Context, rec ledger.RunRecord) (ledger.RunRecord, error)
	Recent(ctx context.Context, limit int) ([]ledger.RunRecord, error)
	Get(ctx context.Context, runID string) (ledger.RunRecord, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	CheckAll(ctx context.Context) []health.ComponentHealth
}

// Config controls the listener and the middleware stack.
type Config struct {
	Addr           string
	AllowedOrigins []string
	Debug          bool
	ReadTimeout    time.Duration
	// WriteTimeout must cover a full task poll when clients submit with wait.
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TaskRateLimit   middleware.RateLimitConfig
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
		TaskRateLimit:   middleware.RateLimitConfig{RequestsPerMinute: 10, Burst: 5},
	}
}

// Dependencies are the services behind the routes. Runner, History and
// Health are optional; their routes answer 503 when absent.
type Dependencies struct {
	Workflows mcpserver.Workflows
	Runner    mcpserver.TaskRunner
	History   RunHistory
	Health    HealthChecker
	Gatherer  prometheus.Gatherer
	Logger    logging.Logger
	Version   string
}

// Server is the HTTP API.
type Server struct {
	cfg        Config
	deps       Dependencies
	logger     logging.Logger
	engine     *gin.Engine
	httpServer *http.Server
	startTime  time.Time
}

// NewServer builds the router.
func NewServer(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Workflows == nil {
		return nil, errors.New("httpapi: workflows are required")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	defaults := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:       cfg,
		deps:      deps,
		logger:    logging.OrNop(deps.Logger),
		engine:    gin.New(),
		startTime: time.Now(),
	}
	s.engine.Use(middleware.ErrorHandlingMiddleware(s.logger))
	s.engine.Use(middleware.RequestLogger(s.logger))
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
		s.engine.Use(cors.New(corsConfig))
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	api := s.engine.Group("/v1")
	api.Use(middleware.JSONMiddleware())

	tasks := api.Group("/tasks")
	{
		tasks.POST("", middleware.RateLimitMiddleware(s.cfg.TaskRateLimit), s.handleCreateTask)
		tasks.GET("", s.handleListRuns)
		tasks.GET("/:id", s.handleGetRun)
	}

	api.POST("/search", s.handleSearch)
	api.POST("/synthesize", s.handleSynthesize)
	api.POST("/research", s.handleResearch)
	api.GET("/graphs/:collection", s.handleGraph)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening on %s", ln.Addr())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("httpapi: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("Stopping HTTP API")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("httpapi: serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}
