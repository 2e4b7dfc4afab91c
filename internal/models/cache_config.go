package models

import "time"

const (
	defaultProjectTTL = 5 * time.Minute
	defaultSummaryTTL = 1 * time.Minute
	defaultGlobalTTL  = 10 * time.Minute
)

// CacheConfig holds configuration for the statistics read cache (optional)
type CacheConfig struct {
	Enabled           bool   `json:"enabled,omitzero" yaml:"enabled"`
	RedisURL          string `json:"redis_url,omitzero" yaml:"redis_url"` // Required if enabled
	ProjectTTLSeconds int    `json:"project_ttl_seconds,omitzero" yaml:"project_ttl_seconds,omitempty"`
	SummaryTTLSeconds int    `json:"summary_ttl_seconds,omitzero" yaml:"summary_ttl_seconds,omitempty"`
	GlobalTTLSeconds  int    `json:"global_ttl_seconds,omitzero" yaml:"global_ttl_seconds,omitempty"`
}

func (c CacheConfig) ProjectTTL() time.Duration {
	if c.ProjectTTLSeconds > 0 {
		return time.Duration(c.ProjectTTLSeconds) * time.Second
	}
	return defaultProjectTTL
}

func (c CacheConfig) SummaryTTL() time.Duration {
	if c.SummaryTTLSeconds > 0 {
		return time.Duration(c.SummaryTTLSeconds) * time.Second
	}
	return defaultSummaryTTL
}

func (c CacheConfig) GlobalTTL() time.Duration {
	if c.GlobalTTLSeconds > 0 {
		return time.Duration(c.GlobalTTLSeconds) * time.Second
	}
	return defaultGlobalTTL
}
