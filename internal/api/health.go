package api

import (
	"context"
	"time"

	"github.com/nibernar/statistics-service/internal/services/database"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports the service's own status plus its two dependencies:
// the statistics database and the Redis cache.
type HealthHandler struct {
	db          *database.DB
	redisClient *redis.Client
}

func NewHealthHandler(db *database.DB, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{
		db:          db,
		redisClient: redisClient,
	}
}

func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	databaseStatus := h.checkDatabase()
	cacheStatus := h.checkRedis()

	overallStatus := "healthy"
	statusCode := fiber.StatusOK

	// The cache is best-effort; only a failing database degrades the service.
	if databaseStatus == "unhealthy" {
		overallStatus = "unhealthy"
		statusCode = fiber.StatusServiceUnavailable
	} else if cacheStatus == "unhealthy" {
		overallStatus = "degraded"
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"components": fiber.Map{
			"database": databaseStatus,
			"cache":    cacheStatus,
		},
	})
}

func (h *HealthHandler) checkDatabase() string {
	if h.db == nil {
		return "not_configured"
	}
	if err := h.db.Ping(); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

func (h *HealthHandler) checkRedis() string {
	if h.redisClient == nil {
		return "not_configured"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		return "unhealthy"
	}
	return "healthy"
}
