package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/nibernar/statistics-service/internal/services/statistics"
)

type RetentionScheduler struct {
	statsService  *statistics.Service
	retentionDays int
	interval      time.Duration
	stopChan      chan struct{}
}

func NewRetentionScheduler(statsService *statistics.Service, retentionDays int, interval time.Duration) *RetentionScheduler {
	if interval == 0 {
		interval = 24 * time.Hour
	}
	return &RetentionScheduler{
		statsService:  statsService,
		retentionDays: retentionDays,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

func (s *RetentionScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("Retention scheduler started, running every %s", s.interval)

	for {
		select {
		case <-ticker.C:
			if removed, err := s.statsService.CleanupOldStatistics(ctx, s.retentionDays); err != nil {
				log.Printf("Error running retention cleanup: %v", err)
			} else {
				log.Printf("Retention cleanup removed %d statistics records", removed)
			}
		case <-s.stopChan:
			log.Println("Retention scheduler stopped")
			return
		case <-ctx.Done():
			log.Println("Retention scheduler stopped due to context cancellation")
			return
		}
	}
}

func (s *RetentionScheduler) Stop() {
	close(s.stopChan)
}
