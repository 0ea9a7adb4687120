// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	"golang.org/x/sync/errgroup"

	"github.com/mbd888/riskproxy/internal/account"
	"github.com/mbd888/riskproxy/internal/auth"
	"github.com/mbd888/riskproxy/internal/authority"
	"github.com/mbd888/riskproxy/internal/circuitbreaker"
	"github.com/mbd888/riskproxy/internal/config"
	"github.com/mbd888/riskproxy/internal/events"
	"github.com/mbd888/riskproxy/internal/health"
	"github.com/mbd888/riskproxy/internal/logging"
	"github.com/mbd888/riskproxy/internal/metrics"
	"github.com/mbd888/riskproxy/internal/proxy"
	"github.com/mbd888/riskproxy/internal/ratelimit"
	"github.com/mbd888/riskproxy/internal/realtime"
	"github.com/mbd888/riskproxy/internal/retry"
	"github.com/mbd888/riskproxy/internal/security"
	"github.com/mbd888/riskproxy/internal/state"
	"github.com/mbd888/riskproxy/internal/traces"
	"github.com/mbd888/riskproxy/internal/validation"
	"github.com/mbd888/riskproxy/migrations"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg           *config.Config
	version       string
	store         state.Store
	service       *proxy.Service
	authMgr       *auth.Manager
	realtimeHub   *realtime.Hub
	sink          events.Sink
	extraSinks    []events.Sink
	checks        *health.Registry
	rateLimiter   *ratelimit.Limiter
	db            *sql.DB // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	drainDelay    time.Duration
	traceShutdown func(context.Context) error
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStore injects the registry store instead of building one from
// DATABASE_URL (for testing).
func WithStore(store state.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithSink adds an event sink alongside the built-in ones.
func WithSink(sink events.Sink) Option {
	return func(s *Server) {
		s.extraSinks = append(s.extraSinks, sink)
	}
}

// WithVersion sets the version reported by /health and traces.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithDrainDelay sets how long Shutdown waits for load balancers to stop
// sending traffic before closing listeners.
func WithDrainDelay(d time.Duration) Option {
	return func(s *Server) {
		s.drainDelay = d
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		version:    "dev",
		drainDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	}

	ctx := context.Background()

	// Storage: Postgres if DATABASE_URL set and no store injected, otherwise in-memory
	var authStore auth.Store
	switch {
	case s.store != nil:
		authStore = auth.NewMemoryStore()
	case cfg.DatabaseURL != "":
		db, err := openDatabase(ctx, cfg.DatabaseURL, s.logger)
		if err != nil {
			return nil, err
		}
		if err := migrations.Up(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		s.db = db
		s.store = state.NewPostgresStore(db)
		authStore = auth.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	default:
		s.store = state.NewMemoryStore()
		authStore = auth.NewMemoryStore()
		s.logger.Warn("using in-memory storage; registry state is lost on restart")
	}

	// Caller identity: API keys always, signed bearer tokens when a secret is set
	authOpts := []auth.Option{auth.WithLogger(s.logger)}
	if cfg.JWTSecret != "" {
		tokens, err := auth.NewTokenService(cfg.JWTSecret, time.Hour)
		if err != nil {
			return nil, fmt.Errorf("invalid AUTH_JWT_SECRET: %w", err)
		}
		authOpts = append(authOpts, auth.WithTokens(tokens))
	}
	s.authMgr = auth.NewManager(authStore, authOpts...)

	// Change feed: log, websocket hub, optionally Kafka
	origins := security.NormalizeOrigins(cfg.CORSAllowedOrigins)
	s.realtimeHub = realtime.NewHub(s.logger, realtime.WithAllowedOrigins(origins...))
	sinks := events.Multi{events.NewLogSink(s.logger), s.realtimeHub}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to kafka: %w", err)
		}
		sinks = append(sinks, events.Guard("kafka", kafka, circuitbreaker.New(5, 30*time.Second)))
		s.logger.Info("publishing registry events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	sinks = append(sinks, s.extraSinks...)
	s.sink = sinks

	shutdown, err := traces.Init(ctx, cfg.OTLPEndpoint, s.version, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	s.traceShutdown = shutdown

	s.service = proxy.NewService(s.store, s.sink, s.logger)

	if err := s.bootstrap(ctx); err != nil {
		return nil, err
	}

	s.checks = health.NewRegistry()
	s.checks.Register("store", health.PingChecker("store", s.store, 2*time.Second))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// openDatabase opens the pool and waits for the database to accept
// connections, which matters when it starts alongside the server.
func openDatabase(ctx context.Context, dsn string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	err = retry.DoNotify(ctx, 5, 500*time.Millisecond, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}, func(attempt int, err error, next time.Duration) {
		logger.Warn("database not ready, retrying", "attempt", attempt, "backoff", next, "error", err)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// bootstrap initializes the registry with INITIAL_OWNER if it has no owner.
func (s *Server) bootstrap(ctx context.Context) error {
	if s.cfg.InitialOwner == "" {
		return nil
	}
	owner, err := account.Parse(s.cfg.InitialOwner)
	if err != nil {
		return fmt.Errorf("INITIAL_OWNER: %w", err)
	}

	err = s.service.Initialize(ctx, owner)
	switch {
	case err == nil:
		s.logger.Info("registry initialized", "owner", owner)
	case errors.Is(err, authority.ErrAlreadyInitialized):
		s.logger.Debug("registry already initialized; INITIAL_OWNER ignored")
	default:
		return fmt.Errorf("failed to initialize registry: %w", err)
	}
	return nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(traces.Middleware())
	s.router.Use(security.HeadersMiddleware(s.cfg.IsProduction()))
	s.router.Use(security.CORSMiddleware(security.NormalizeOrigins(s.cfg.CORSAllowedOrigins)))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Debug("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// callerKey charges authenticated requests to their account and anonymous
// ones to their IP.
func callerKey(c *gin.Context) string {
	if id, ok := auth.GetCaller(c); ok {
		return "caller:" + id.String()
	}
	return ratelimit.ByClientIP(c)
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket change feed
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	s.rateLimiter = ratelimit.New(ratelimit.ForRate(s.cfg.RateLimitRPM))

	v1 := s.router.Group("/v1")
	v1.Use(auth.Middleware(s.authMgr))
	v1.Use(s.rateLimiter.Middleware(callerKey))

	registryHandler := proxy.NewHandler(s.service)
	authHandler := auth.NewHandler(s.authMgr)

	// Public reads
	registryHandler.RegisterRoutes(v1)
	v1.GET("/auth/info", authHandler.Info)

	// Mutations and key self-service need a caller
	protected := v1.Group("")
	protected.Use(auth.RequireAuth())
	registryHandler.RegisterProtectedRoutes(protected)
	authHandler.RegisterRoutes(protected)

	// Operator endpoints
	admin := v1.Group("/admin")
	admin.Use(auth.RequireAdmin(s.cfg.AdminSecret))
	registryHandler.RegisterAdminRoutes(admin)
	authHandler.RegisterAdminRoutes(admin)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Realtime  map[string]any  `json:"realtime,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	ok, checks := s.checks.CheckAll(ctx)

	status, httpStatus := "healthy", http.StatusOK
	if !ok {
		status, httpStatus = "degraded", http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   s.version,
		Checks:    checks,
		Realtime:  s.realtimeHub.Stats(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run serves HTTP and runs the background workers until ctx is cancelled,
// SIGINT/SIGTERM arrives or the listener fails, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		s.logger.Info("starting server", "port", s.cfg.Port, "version", s.version)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.realtimeHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		metrics.StartStatsCollector(gctx, s.store, 15*time.Second)
		return nil
	})
	if s.db != nil {
		g.Go(func() error {
			metrics.StartDBStatsCollector(gctx, s.db, 15*time.Second)
			return nil
		})
	}

	s.ready.Store(true)
	s.logger.Info("server ready")

	<-gctx.Done()
	if ctx.Err() != nil {
		s.logger.Info("shutdown signal received")
	}

	shutdownErr := s.Shutdown()
	if err := g.Wait(); err != nil {
		return err
	}
	return shutdownErr
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(s.drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			errs = append(errs, err)
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if err := s.sink.Close(); err != nil {
		s.logger.Error("event sink close error", "error", err)
		errs = append(errs, err)
	}

	if err := s.traceShutdown(ctx); err != nil {
		s.logger.Error("trace exporter shutdown error", "error", err)
	}

	// Closes the database pool when Postgres-backed
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close error", "error", err)
		errs = append(errs, err)
	}

	s.logger.Info("server stopped")
	return errors.Join(errs...)
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Service returns the registry call surface.
func (s *Server) Service() *proxy.Service {
	return s.service
}

// Auth returns the API key manager.
func (s *Server) Auth() *auth.Manager {
	return s.authMgr
}
