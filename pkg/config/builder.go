// Package config provides the embeddable statistics service server and its
// fluent configuration builder.
package config

import (
	"time"

	"github.com/nibernar/statistics-service/internal/config"
	"github.com/nibernar/statistics-service/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Builder provides a fluent interface for building service configurations.
type Builder struct {
	cfg             *config.Config
	middlewares     []fiber.Handler
	rateLimitConfig *models.RateLimitConfig
	timeoutConfig   *models.TimeoutConfig
}

// New creates a new configuration builder with minimal defaults.
func New() *Builder {
	return &Builder{
		cfg: &config.Config{
			Server: models.ServerConfig{
				Port:           "8080",
				AllowedOrigins: "*",
				Environment:    "development",
				LogLevel:       "info",
			},
		},
		middlewares: []fiber.Handler{},
	}
}

// Server configuration

// Port sets the server port.
func (b *Builder) Port(port string) *Builder {
	b.cfg.Server.Port = port
	return b
}

// AllowedOrigins sets CORS allowed origins.
func (b *Builder) AllowedOrigins(origins string) *Builder {
	b.cfg.Server.AllowedOrigins = origins
	return b
}

// Environment sets the environment (development/production).
func (b *Builder) Environment(env string) *Builder {
	b.cfg.Server.Environment = env
	return b
}

// LogLevel sets the logging level (trace, debug, info, warn, error, fatal).
func (b *Builder) LogLevel(level string) *Builder {
	b.cfg.Server.LogLevel = level
	return b
}

// WithDatabase configures the statistics database.
func (b *Builder) WithDatabase(cfg models.DatabaseConfig) *Builder {
	b.cfg.Database = &cfg
	return b
}

// WithCache enables the Redis statistics cache.
func (b *Builder) WithCache(cfg models.CacheConfig) *Builder {
	cfg.Enabled = true
	b.cfg.Cache = cfg
	return b
}

// WithServiceAuth enables service-token authentication for internal callers.
func (b *Builder) WithServiceAuth(jwtSecret string) *Builder {
	b.cfg.Auth.Enabled = true
	b.cfg.Auth.JWTSecret = jwtSecret
	return b
}

// WithWebhookSecret enables the project lifecycle webhook endpoint.
func (b *Builder) WithWebhookSecret(secret string) *Builder {
	b.cfg.Auth.WebhookSecret = secret
	return b
}

// WithEvents enables outbound statistics event notifications.
func (b *Builder) WithEvents(cfg models.EventsConfig) *Builder {
	cfg.Enabled = true
	b.cfg.Events = cfg
	return b
}

// WithRetention enables the periodic retention cleanup.
func (b *Builder) WithRetention(cfg models.RetentionConfig) *Builder {
	cfg.Enabled = true
	b.cfg.Retention = cfg
	return b
}

// Middleware configuration

// WithRateLimit configures rate limiting middleware.
func (b *Builder) WithRateLimit(max int, expiration time.Duration, keyFunc ...func(*fiber.Ctx) string) *Builder {
	cfg := &models.RateLimitConfig{
		Max:        max,
		Expiration: expiration,
	}
	if len(keyFunc) > 0 {
		cfg.KeyFunc = keyFunc[0]
	}
	b.rateLimitConfig = cfg
	return b
}

// WithTimeout configures request timeout middleware.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeoutConfig = &models.TimeoutConfig{
		Timeout: timeout,
	}
	return b
}

// WithMiddleware adds a custom middleware.
func (b *Builder) WithMiddleware(middleware fiber.Handler) *Builder {
	b.middlewares = append(b.middlewares, middleware)
	return b
}

// GetMiddlewares returns all configured middlewares.
func (b *Builder) GetMiddlewares() []fiber.Handler {
	return b.middlewares
}

// GetRateLimitConfig returns the rate limit configuration.
func (b *Builder) GetRateLimitConfig() *models.RateLimitConfig {
	return b.rateLimitConfig
}

// GetTimeoutConfig returns the timeout configuration.
func (b *Builder) GetTimeoutConfig() *models.TimeoutConfig {
	return b.timeoutConfig
}

// Build returns the constructed configuration.
func (b *Builder) Build() *config.Config {
	return b.cfg
}

// FromYAML creates a Builder from a YAML configuration file.
// The envFiles parameter specifies which .env files to load before parsing
// the YAML config; files are loaded in order (first has highest priority).
func FromYAML(path string, envFiles []string) (*Builder, error) {
	if len(envFiles) > 0 {
		config.LoadEnvFiles(envFiles)
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	return &Builder{
		cfg:         cfg,
		middlewares: []fiber.Handler{},
	}, nil
}
