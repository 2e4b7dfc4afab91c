package models

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	FailureThreshold int `json:"failure_threshold,omitzero" yaml:"failure_threshold,omitempty"` // Number of failures before opening circuit
	SuccessThreshold int `json:"success_threshold,omitzero" yaml:"success_threshold,omitempty"` // Number of successes to close circuit
	TimeoutMs        int `json:"timeout_ms,omitzero" yaml:"timeout_ms,omitempty"`               // Timeout for circuit breaker in milliseconds
	ResetAfterMs     int `json:"reset_after_ms,omitzero" yaml:"reset_after_ms,omitempty"`       // Time to wait before trying to close circuit
}

// EventsConfig configures the outbound statistics event notifier.
// Events are enabled when EndpointURL is non-empty.
type EventsConfig struct {
	Enabled        bool                  `json:"enabled,omitzero" yaml:"enabled"`
	EndpointURL    string                `json:"endpoint_url,omitzero" yaml:"endpoint_url,omitempty"`
	JWTSecret      string                `json:"jwt_secret,omitzero" yaml:"jwt_secret,omitempty"`
	TimeoutMs      int                   `json:"timeout_ms,omitzero" yaml:"timeout_ms,omitempty"`
	MaxRetries     int                   `json:"max_retries,omitzero" yaml:"max_retries,omitempty"`
	CircuitBreaker *CircuitBreakerConfig `json:"circuit_breaker,omitzero" yaml:"circuit_breaker,omitempty"`
}
