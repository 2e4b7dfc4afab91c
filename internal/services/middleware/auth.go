package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"
)

// callerLocalKey is the fiber locals key holding the authenticated caller's
// service name (the JWT subject).
const callerLocalKey = "service_caller"

type ServiceAuthMiddleware struct {
	config *ServiceAuthConfig
}

type ServiceAuthConfig struct {
	Enabled   bool
	JWTSecret string
	SkipPaths []string
}

func DefaultServiceAuthConfig() *ServiceAuthConfig {
	return &ServiceAuthConfig{
		Enabled: true,
		SkipPaths: []string{
			"/health",
			"/webhooks",
		},
	}
}

// NewServiceAuthMiddleware builds the middleware authenticating internal
// callers by a shared-secret HS256 service token.
func NewServiceAuthMiddleware(config *ServiceAuthConfig) *ServiceAuthMiddleware {
	if config == nil {
		config = DefaultServiceAuthConfig()
	}
	if len(config.SkipPaths) == 0 {
		config.SkipPaths = DefaultServiceAuthConfig().SkipPaths
	}
	return &ServiceAuthMiddleware{config: config}
}

// RequireAuth rejects requests without a valid service token.
func (m *ServiceAuthMiddleware) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !m.config.Enabled {
			return c.Next()
		}

		if m.shouldSkipPath(c.Path()) {
			return c.Next()
		}

		token := extractBearerToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing service token",
			})
		}

		caller, err := m.verifyToken(token)
		if err != nil {
			fiberlog.Debugf("ServiceAuth: token rejected: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid service token",
			})
		}

		c.Locals(callerLocalKey, caller)
		return c.Next()
	}
}

func (m *ServiceAuthMiddleware) verifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(m.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("token is not valid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		return "", fmt.Errorf("token has no subject")
	}

	return subject, nil
}

func (m *ServiceAuthMiddleware) shouldSkipPath(path string) bool {
	for _, skip := range m.config.SkipPaths {
		if path == skip || strings.HasPrefix(path, skip+"/") {
			return true
		}
	}
	return false
}

func extractBearerToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if header == "" {
		return ""
	}
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// CallerName returns the authenticated caller's service name, or empty when
// the request was not authenticated (auth disabled or skipped path).
func CallerName(c *fiber.Ctx) string {
	if caller, ok := c.Locals(callerLocalKey).(string); ok {
		return caller
	}
	return ""
}
