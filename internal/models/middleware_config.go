package models

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// RateLimitConfig tunes the sliding-window limiter protecting the write
// endpoints from misbehaving reporting services. KeyFunc defaults to the
// caller IP when nil.
type RateLimitConfig struct {
	Max        int
	Expiration time.Duration
	KeyFunc    func(*fiber.Ctx) string
}

// TimeoutConfig caps how long a single statistics request may run before
// the middleware aborts it.
type TimeoutConfig struct {
	Timeout time.Duration
}
