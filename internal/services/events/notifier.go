package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nibernar/statistics-service/internal/models"
	"github.com/nibernar/statistics-service/internal/services/circuitbreaker"
	"github.com/nibernar/statistics-service/internal/utils/clientcache"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	EventStatisticsUpdated = "statistics.updated"
	EventStatisticsDeleted = "statistics.deleted"

	deliveryTimeout = 15 * time.Second
	tokenLifetime   = 5 * time.Minute
)

// Event is the envelope delivered to the configured consumer endpoint.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ProjectID string    `json:"project_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Notifier delivers statistics lifecycle events to a configured endpoint.
// Delivery is fire-and-forget: each event is pushed on its own goroutine,
// failures are logged and never reach the caller.
type Notifier struct {
	config         models.EventsConfig
	circuitBreaker *circuitbreaker.CircuitBreaker
	clients        *clientcache.Cache[*Client]
}

// NewNotifier returns nil when events are disabled or no endpoint is
// configured; a nil Notifier satisfies the service's Notifier interface
// checks upstream (the service skips a nil notifier).
func NewNotifier(config models.EventsConfig, redisClient *redis.Client) *Notifier {
	if !config.Enabled || config.EndpointURL == "" {
		return nil
	}

	n := &Notifier{
		config:  config,
		clients: clientcache.NewCache[*Client](),
	}

	if redisClient != nil {
		cbConfig := circuitbreaker.Config{
			FailureThreshold: 5,
			SuccessThreshold: 3,
			Timeout:          30 * time.Second,
			ResetAfter:       2 * time.Minute,
		}
		if cb := config.CircuitBreaker; cb != nil {
			if cb.FailureThreshold > 0 {
				cbConfig.FailureThreshold = cb.FailureThreshold
			}
			if cb.SuccessThreshold > 0 {
				cbConfig.SuccessThreshold = cb.SuccessThreshold
			}
			if cb.TimeoutMs > 0 {
				cbConfig.Timeout = time.Duration(cb.TimeoutMs) * time.Millisecond
			}
			if cb.ResetAfterMs > 0 {
				cbConfig.ResetAfter = time.Duration(cb.ResetAfterMs) * time.Millisecond
			}
		}
		n.circuitBreaker = circuitbreaker.NewWithConfig(redisClient, "statistics_events", cbConfig)
	}

	return n
}

// StatisticsUpdated publishes a statistics.updated event.
func (n *Notifier) StatisticsUpdated(projectID string, stats *models.ProjectStatistics) {
	n.publish(Event{
		ID:        "evt_" + uuid.New().String(),
		Type:      EventStatisticsUpdated,
		ProjectID: projectID,
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"cost_total":          stats.Costs.Total,
			"documents_generated": stats.Usage.DocumentsGenerated,
			"quality_score":       stats.Metadata.QualityScore,
			"version":             stats.Version,
		},
	})
}

// StatisticsDeleted publishes a statistics.deleted event.
func (n *Notifier) StatisticsDeleted(projectID string) {
	n.publish(Event{
		ID:        "evt_" + uuid.New().String(),
		Type:      EventStatisticsDeleted,
		ProjectID: projectID,
		Timestamp: time.Now().UTC(),
	})
}

func (n *Notifier) publish(event Event) {
	if n == nil {
		return
	}

	go func() {
		if n.circuitBreaker != nil && !n.circuitBreaker.CanExecute() {
			fiberlog.Warnf("[EVENTS] Consumer endpoint unavailable (circuit open), dropping %s for project %s",
				event.Type, event.ProjectID)
			return
		}

		if err := n.deliver(event); err != nil {
			if n.circuitBreaker != nil {
				n.circuitBreaker.RecordFailure()
			}
			fiberlog.Warnf("[EVENTS] Failed to deliver %s for project %s: %v",
				event.Type, event.ProjectID, err)
			return
		}

		if n.circuitBreaker != nil {
			n.circuitBreaker.RecordSuccess()
		}
		fiberlog.Debugf("[EVENTS] Delivered %s for project %s", event.Type, event.ProjectID)
	}()
}

func (n *Notifier) deliver(event Event) error {
	client, err := n.clients.GetOrCreate(n.config.EndpointURL, func() (*Client, error) {
		cfg := DefaultClientConfig(n.config.EndpointURL)
		if n.config.TimeoutMs > 0 {
			cfg.Timeout = time.Duration(n.config.TimeoutMs) * time.Millisecond
		}
		return NewClientWithConfig(cfg), nil
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	opts := &RequestOptions{Context: ctx}
	if n.config.MaxRetries > 0 {
		opts.Retries = n.config.MaxRetries
	}

	if n.config.JWTSecret != "" {
		token, err := n.mintToken()
		if err != nil {
			return fmt.Errorf("failed to mint event token: %w", err)
		}
		opts.Headers = map[string]string{
			"Authorization": "Bearer " + token,
		}
	}

	return client.Post("", event, nil, opts)
}

func (n *Notifier) mintToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "statistics-service",
		"iat": now.Unix(),
		"exp": now.Add(tokenLifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(n.config.JWTSecret))
}
