package models

import "time"

const (
	defaultRetentionDays     = 90
	defaultRetentionInterval = 24 * time.Hour
)

// RetentionConfig configures the periodic cleanup of statistics whose parent
// project is archived or deleted.
type RetentionConfig struct {
	Enabled       bool `json:"enabled,omitzero" yaml:"enabled"`
	Days          int  `json:"days,omitzero" yaml:"days,omitempty"`
	IntervalHours int  `json:"interval_hours,omitzero" yaml:"interval_hours,omitempty"`
}

func (r RetentionConfig) RetentionDays() int {
	if r.Days > 0 {
		return r.Days
	}
	return defaultRetentionDays
}

func (r RetentionConfig) Interval() time.Duration {
	if r.IntervalHours > 0 {
		return time.Duration(r.IntervalHours) * time.Hour
	}
	return defaultRetentionInterval
}
