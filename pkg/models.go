package pkg

import "github.com/nibernar/statistics-service/internal/models"

type (
	ServerConfig         = models.ServerConfig
	DatabaseConfig       = models.DatabaseConfig
	CacheConfig          = models.CacheConfig
	AuthConfig           = models.AuthConfig
	EventsConfig         = models.EventsConfig
	RetentionConfig      = models.RetentionConfig
	CircuitBreakerConfig = models.CircuitBreakerConfig
	RateLimitConfig      = models.RateLimitConfig
	TimeoutConfig        = models.TimeoutConfig

	ProjectStatistics       = models.ProjectStatistics
	StatisticsResponse      = models.StatisticsResponse
	StatisticsSummary       = models.StatisticsSummary
	GlobalStatistics        = models.GlobalStatistics
	UpdateStatisticsRequest = models.UpdateStatisticsRequest
	SearchCriteria          = models.SearchCriteria
	Project                 = models.Project
)
