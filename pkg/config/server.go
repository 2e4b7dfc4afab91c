package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nibernar/statistics-service/internal/api"
	"github.com/nibernar/statistics-service/internal/config"
	"github.com/nibernar/statistics-service/internal/models"
	"github.com/nibernar/statistics-service/internal/services/database"
	"github.com/nibernar/statistics-service/internal/services/events"
	"github.com/nibernar/statistics-service/internal/services/middleware"
	"github.com/nibernar/statistics-service/internal/services/projects"
	"github.com/nibernar/statistics-service/internal/services/request"
	"github.com/nibernar/statistics-service/internal/services/scheduler"
	"github.com/nibernar/statistics-service/internal/services/statistics"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/redis/go-redis/v9"
)

// Server is a statistics service instance.
type Server struct {
	config  *config.Config
	app     *fiber.App
	redis   *redis.Client
	db      *database.DB
	builder *Builder
}

// NewServer creates a Server with the given configuration.
// The cfg parameter is required and must not be nil.
// For middleware control, use NewServerWithBuilder.
func NewServer(cfg *config.Config) *Server {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() or the config builder to create config")
	}

	return &Server{config: cfg}
}

// NewServerWithBuilder creates a Server from a configuration builder,
// carrying over any custom middleware.
func NewServerWithBuilder(b *Builder) *Server {
	return &Server{
		config:  b.Build(),
		builder: b,
	}
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogLevel(s.config)

	listenAddr := s.config.Server.ListenAddress()

	s.app = createFiberApp(s.config)

	// === Infrastructure ===
	redisClient, err := createRedisClient(s.config)
	if err != nil {
		return fmt.Errorf("failed to create Redis client: %w", err)
	}
	s.redis = redisClient
	if s.redis != nil {
		defer func() {
			if err := s.redis.Close(); err != nil {
				fiberlog.Errorf("Failed to close Redis client: %v", err)
			}
		}()
	}

	if s.config.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	db, err := database.New(*s.config.Database)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	s.db = db
	defer func() {
		if err := s.db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
		}
	}()
	fiberlog.Infof("Database (%s) initialized successfully", db.DriverName())

	// === Services ===
	repo := statistics.NewRepository(db.DB)
	if err := runMigrations(db, repo); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	fiberlog.Info("Database migrations completed successfully")

	cache := statistics.NewCache(s.redis, s.config.Cache)

	var notifier statistics.Notifier
	if n := events.NewNotifier(s.config.Events, s.redis); n != nil {
		notifier = n
		fiberlog.Infof("Event notifier enabled for %s", s.config.Events.EndpointURL)
	}

	statsService := statistics.NewService(repo, cache, notifier)
	projectsService := projects.NewService(db.DB, statsService)

	// === Middleware ===
	s.setupMiddleware()

	// === Routes ===
	s.setupRoutes(statsService, projectsService)

	// === Retention scheduler ===
	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	defer schedulerCancel()
	if s.config.Retention.Enabled {
		retention := scheduler.NewRetentionScheduler(
			statsService,
			s.config.Retention.RetentionDays(),
			s.config.Retention.Interval(),
		)
		go retention.Start(schedulerCtx)
		defer retention.Stop()
	}

	fmt.Printf("Statistics service starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", s.config.Server.Environment)
	fmt.Printf("   Go version: %s\n", runtime.Version())
	fmt.Printf("   GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	}

	fiberlog.Info("Server shutting down gracefully...")
	if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	fiberlog.Info("Server shutdown completed successfully")

	return nil
}

func runMigrations(db *database.DB, repo *statistics.Repository) error {
	if db.DriverName() == "clickhouse" {
		return database.RunClickHouseMigrations(db.DB)
	}
	return repo.AutoMigrate()
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		ErrorHandler:         errorHandler,
		AppName:              "StatisticsService v1.0",
		EnablePrintRoutes:    !isProd,
		ReadTimeout:          1 * time.Minute,
		WriteTimeout:         1 * time.Minute,
		IdleTimeout:          5 * time.Minute,
		ReadBufferSize:       8192,
		WriteBufferSize:      8192,
		CompressedFileSuffix: ".gz",
		Prefork:              false,
		CaseSensitive:        true,
		StrictRouting:        false,
		Network:              "tcp",
		ServerHeader:         "StatisticsService",
	})
}

// errorHandler renders unhandled errors as the shared JSON envelope.
// Fiber's own errors keep their status; everything else is sanitized so
// internal detail stays in the logs.
func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
	}

	if errors.Is(err, context.DeadlineExceeded) {
		err = models.NewTimeoutError(c.Method()+" "+c.Path(), err)
	}

	appErr := models.SanitizeError(err)
	if appErr.Type == models.ErrorTypeInternal {
		fiberlog.Errorf("Unhandled error on %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(appErr.GetStatusCode()).JSON(appErr)
}

func (s *Server) setupMiddleware() {
	cfg := s.config
	isProd := cfg.IsProduction()

	// Recover middleware (must be first)
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	// Request ID propagation
	s.app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Request-ID", request.ID(c))
		return c.Next()
	})

	// Rate limiter
	if s.builder != nil && s.builder.GetRateLimitConfig() != nil {
		rlCfg := s.builder.GetRateLimitConfig()
		keyFunc := rlCfg.KeyFunc
		if keyFunc == nil {
			keyFunc = defaultRateLimitKey
		}
		s.app.Use(limiter.New(limiter.Config{
			Max:               rlCfg.Max,
			Expiration:        rlCfg.Expiration,
			LimiterMiddleware: limiter.SlidingWindow{},
			KeyGenerator:      keyFunc,
			LimitReached: func(c *fiber.Ctx) error {
				return models.NewRateLimitError(fmt.Sprintf("%d requests per %v", rlCfg.Max, rlCfg.Expiration))
			},
		}))
	} else {
		s.app.Use(limiter.New(limiter.Config{
			Max:               1000,
			Expiration:        1 * time.Minute,
			LimiterMiddleware: limiter.SlidingWindow{},
			KeyGenerator:      defaultRateLimitKey,
			LimitReached: func(c *fiber.Ctx) error {
				return models.NewRateLimitError("1000 requests per minute")
			},
		}))
	}

	// Request timeout
	if s.builder != nil && s.builder.GetTimeoutConfig() != nil {
		timeoutDuration := s.builder.GetTimeoutConfig().Timeout
		s.app.Use(func(c *fiber.Ctx) error {
			handler := func(c *fiber.Ctx) error {
				return c.Next()
			}
			return timeout.NewWithContext(handler, timeoutDuration)(c)
		})
	} else {
		s.app.Use(func(c *fiber.Ctx) error {
			const (
				defaultTimeout = 30 * time.Second
				maxTimeout     = 1 * time.Minute
			)

			timeout := defaultTimeout
			if customTimeout := c.Get("X-Request-Timeout"); customTimeout != "" {
				if d, err := time.ParseDuration(customTimeout); err == nil && d > 0 {
					timeout = min(d, maxTimeout)
				}
			}

			ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
			defer cancel()
			c.SetUserContext(ctx)

			return c.Next()
		})
	}

	// Compression
	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// Logging
	if isProd {
		s.app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		s.app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		AllowCredentials: true,
		MaxAge:           86400,
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
	}))

	// Custom middlewares from builder
	if s.builder != nil {
		for _, mw := range s.builder.GetMiddlewares() {
			s.app.Use(mw)
		}
	}

	// Profiler (dev only)
	if !isProd {
		s.app.Use(pprof.New())
	}
}

func defaultRateLimitKey(c *fiber.Ctx) string {
	if caller := middleware.CallerName(c); caller != "" {
		return caller
	}
	return c.IP()
}

func (s *Server) setupRoutes(statsService *statistics.Service, projectsService *projects.Service) {
	cfg := s.config

	healthHandler := api.NewHealthHandler(s.db, s.redis)
	s.app.Get("/health", healthHandler.HealthCheck)

	if cfg.Auth.WebhookSecret != "" {
		webhookHandler := api.NewProjectWebhookHandler(cfg.Auth.WebhookSecret, projectsService)
		s.app.Post("/webhooks/projects", webhookHandler.HandleWebhook)
	}

	v1 := s.app.Group("/api/v1")
	if cfg.Auth.Enabled {
		authMiddleware := middleware.NewServiceAuthMiddleware(&middleware.ServiceAuthConfig{
			Enabled:   true,
			JWTSecret: cfg.Auth.JWTSecret,
			SkipPaths: cfg.Auth.SkipPaths,
		})
		v1.Use(authMiddleware.RequireAuth())
	}

	api.NewStatisticsHandler(statsService).RegisterRoutes(v1)
	api.NewProjectsHandler(projectsService).RegisterRoutes(v1)

	s.app.Get("/", welcomeHandler())
}

func welcomeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":    "Statistics service",
			"version":    "1.0.0",
			"go_version": runtime.Version(),
			"status":     "running",
			"endpoints": fiber.Map{
				"statistics": "/api/v1/projects/:projectId/statistics",
				"batch":      "/api/v1/statistics/batch",
				"search":     "/api/v1/statistics/search",
				"global":     "/api/v1/statistics/global",
				"projects":   "/api/v1/projects",
				"health":     "/health",
			},
		})
	}
}

func setupLogLevel(cfg *config.Config) {
	logLevel := cfg.GetNormalizedLogLevel()

	switch logLevel {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	case "fatal":
		fiberlog.SetLevel(fiberlog.LevelFatal)
	case "panic":
		fiberlog.SetLevel(fiberlog.LevelPanic)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", logLevel)
	}

	fiberlog.Infof("Log level set to: %s", logLevel)
}

func createRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Cache.Enabled || cfg.Cache.RedisURL == "" {
		fiberlog.Info("Redis not configured - statistics cache and event circuit breaker disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.Cache.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.ConnMaxLifetime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 512 * time.Millisecond

	fiberlog.Debugf("Redis client configuration: PoolSize=%d, MinIdle=%d, MaxRetries=%d",
		opt.PoolSize, opt.MinIdleConns, opt.MaxRetries)

	client := redis.NewClient(opt)

	return testRedisConnectionWithRetry(client)
}

func testRedisConnectionWithRetry(client *redis.Client) (*redis.Client, error) {
	const maxAttempts = 3
	const baseDelay = 1 * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()

		if err == nil {
			fiberlog.Infof("Redis connection established successfully (attempt %d/%d)", attempt, maxAttempts)
			return client, nil
		}

		fiberlog.Warnf("Redis connection failed (attempt %d/%d): %v", attempt, maxAttempts, err)

		if attempt < maxAttempts {
			delay := time.Duration(attempt) * baseDelay
			fiberlog.Infof("Retrying Redis connection in %v...", delay)
			time.Sleep(delay)
		}
	}

	if err := client.Close(); err != nil {
		fiberlog.Errorf("Failed to close Redis client after connection failures: %v", err)
	}

	return nil, fmt.Errorf("failed to connect to Redis after %d attempts", maxAttempts)
}
