// Package request assigns every inbound call a stable request id so log
// lines from the handler, service and repository layers can be correlated.
package request

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	localsKey = "request_id"
	maxIDLen  = 256
)

// ID returns the request id for this call, preferring in order: a value
// already cached in locals, the caller-supplied X-Request-ID header, and
// finally a freshly generated id. The result is cached in locals so every
// layer sees the same id.
func ID(c *fiber.Ctx) string {
	if cached, ok := c.Locals(localsKey).(string); ok && cached != "" {
		return cached
	}

	id := sanitize(c.Get("X-Request-ID"))
	if id == "" {
		id = NewID()
	}

	c.Locals(localsKey, id)
	return id
}

// NewID generates a random req_<hex> identifier.
func NewID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "req_unknown"
	}
	return "req_" + hex.EncodeToString(buf)
}

func sanitize(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > maxIDLen {
		id = id[:maxIDLen]
	}
	return id
}
