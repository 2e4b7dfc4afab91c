package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheConfigTTLDefaults(t *testing.T) {
	var cfg CacheConfig
	assert.Equal(t, 5*time.Minute, cfg.ProjectTTL())
	assert.Equal(t, time.Minute, cfg.SummaryTTL())
	assert.Equal(t, 10*time.Minute, cfg.GlobalTTL())

	cfg = CacheConfig{ProjectTTLSeconds: 30, SummaryTTLSeconds: 10, GlobalTTLSeconds: 120}
	assert.Equal(t, 30*time.Second, cfg.ProjectTTL())
	assert.Equal(t, 10*time.Second, cfg.SummaryTTL())
	assert.Equal(t, 2*time.Minute, cfg.GlobalTTL())
}

func TestRetentionConfigDefaults(t *testing.T) {
	var cfg RetentionConfig
	assert.Equal(t, 90, cfg.RetentionDays())
	assert.Equal(t, 24*time.Hour, cfg.Interval())

	cfg = RetentionConfig{Days: 7, IntervalHours: 6}
	assert.Equal(t, 7, cfg.RetentionDays())
	assert.Equal(t, 6*time.Hour, cfg.Interval())
}

func TestProjectStatusValidity(t *testing.T) {
	assert.True(t, ProjectStatusActive.IsValid())
	assert.True(t, ProjectStatusArchived.IsValid())
	assert.True(t, ProjectStatusDeleted.IsValid())
	assert.False(t, ProjectStatus("suspended").IsValid())
	assert.False(t, ProjectStatus("").IsValid())
}

func TestProjectStatusRetentionEligibility(t *testing.T) {
	assert.False(t, ProjectStatusActive.RetentionEligible())
	assert.True(t, ProjectStatusArchived.RetentionEligible())
	assert.True(t, ProjectStatusDeleted.RetentionEligible())
}
