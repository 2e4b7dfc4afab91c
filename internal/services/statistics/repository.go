package statistics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nibernar/statistics-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrStatisticsNotFound = errors.New("statistics not found")
	ErrProjectIDRequired  = errors.New("project id is required")
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
)

// Repository persists project statistics. Sub-records are stored as JSON
// columns; the hot query fields are mirrored into scalar columns so search
// and cleanup work the same on every supported dialect.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&models.Project{}, &models.ProjectStatistics{})
}

// withRowLock adds FOR UPDATE on dialects that support it. SQLite and
// ClickHouse reject the clause; SQLite serializes writers at the database
// level anyway.
func withRowLock(tx *gorm.DB) *gorm.DB {
	switch tx.Dialector.Name() {
	case "postgres", "mysql":
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	default:
		return tx
	}
}

// Upsert merges the update into the existing record for the project, creating
// the record first if none exists. The merge runs in a transaction with the
// row locked so concurrent updates to the same project serialize instead of
// overwriting each other.
func (r *Repository) Upsert(ctx context.Context, projectID string, req *models.UpdateStatisticsRequest) (*models.ProjectStatistics, error) {
	if projectID == "" {
		return nil, ErrProjectIDRequired
	}

	var stats models.ProjectStatistics

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := withRowLock(tx).
			Where("project_id = ?", projectID).
			First(&stats).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			stats = *models.NewProjectStatistics(projectID)
			stats.ApplyUpdate(req)
			stats.RefreshDenormalized()

			// Two first writers can race past the missing-row lock, so the
			// insert resolves on the project_id unique index.
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "project_id"}},
				UpdateAll: true,
			}).Create(&stats).Error; err != nil {
				return fmt.Errorf("failed to create statistics: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to lock statistics row: %w", err)
		}

		stats.ApplyUpdate(req)
		stats.Version++
		stats.RefreshDenormalized()

		if err := tx.Save(&stats).Error; err != nil {
			return fmt.Errorf("failed to save statistics: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

// PartialUpdate replaces the supplied sub-records wholesale without
// recomputing derived fields. The record must already exist.
func (r *Repository) PartialUpdate(ctx context.Context, projectID string, req *models.PartialUpdateRequest) (*models.ProjectStatistics, error) {
	if projectID == "" {
		return nil, ErrProjectIDRequired
	}

	var stats models.ProjectStatistics

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := withRowLock(tx).
			Where("project_id = ?", projectID).
			First(&stats).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStatisticsNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock statistics row: %w", err)
		}

		if req.Costs != nil {
			stats.Costs = *req.Costs
		}
		if req.Performance != nil {
			stats.Performance = *req.Performance
		}
		if req.Usage != nil {
			stats.Usage = *req.Usage
		}
		if req.Metadata != nil {
			stats.Metadata = *req.Metadata
		}

		stats.Version++
		stats.RefreshDenormalized()

		if err := tx.Save(&stats).Error; err != nil {
			return fmt.Errorf("failed to save statistics: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

// FindByProjectID returns the statistics for a project, or nil when the
// project has none recorded.
func (r *Repository) FindByProjectID(ctx context.Context, projectID string) (*models.ProjectStatistics, error) {
	if projectID == "" {
		return nil, ErrProjectIDRequired
	}

	var stats models.ProjectStatistics
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}

	return &stats, nil
}

// FindByID returns the statistics record with the given primary key, or nil
// when no such record exists.
func (r *Repository) FindByID(ctx context.Context, id string) (*models.ProjectStatistics, error) {
	var stats models.ProjectStatistics
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}

	return &stats, nil
}

// DeleteByProjectID removes the statistics for a project and reports whether
// a record was actually deleted.
func (r *Repository) DeleteByProjectID(ctx context.Context, projectID string) (bool, error) {
	if projectID == "" {
		return false, ErrProjectIDRequired
	}

	res := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Delete(&models.ProjectStatistics{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete statistics: %w", res.Error)
	}

	return res.RowsAffected > 0, nil
}

// FindManyByProjectIDs returns statistics keyed by project ID. Projects
// without statistics are simply absent from the result.
func (r *Repository) FindManyByProjectIDs(ctx context.Context, projectIDs []string) (map[string]*models.ProjectStatistics, error) {
	result := make(map[string]*models.ProjectStatistics, len(projectIDs))
	if len(projectIDs) == 0 {
		return result, nil
	}

	var rows []models.ProjectStatistics
	err := r.db.WithContext(ctx).
		Where("project_id IN ?", projectIDs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics batch: %w", err)
	}

	for i := range rows {
		result[rows[i].ProjectID] = &rows[i]
	}

	return result, nil
}

// FindByCriteria returns statistics matching all supplied filters, newest
// first. Filters run against the mirrored scalar columns.
func (r *Repository) FindByCriteria(ctx context.Context, criteria models.SearchCriteria) ([]models.ProjectStatistics, error) {
	query := r.db.WithContext(ctx).Model(&models.ProjectStatistics{})

	if criteria.MinCostTotal != nil {
		query = query.Where("cost_total >= ?", *criteria.MinCostTotal)
	}
	if criteria.MaxCostTotal != nil {
		query = query.Where("cost_total <= ?", *criteria.MaxCostTotal)
	}
	if criteria.MinDocuments != nil {
		query = query.Where("documents_generated >= ?", *criteria.MinDocuments)
	}
	if criteria.MaxTotalTime != nil {
		query = query.Where("total_time_seconds <= ?", *criteria.MaxTotalTime)
	}
	if criteria.UpdatedAfter != nil {
		query = query.Where("last_updated > ?", *criteria.UpdatedAfter)
	}
	for _, source := range criteria.Sources {
		query = query.Where("sources_list LIKE ?", "%,"+source+",%")
	}

	limit := criteria.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	query = query.Order("last_updated DESC").Limit(limit)

	if criteria.Offset > 0 {
		query = query.Offset(criteria.Offset)
	}

	var rows []models.ProjectStatistics
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to search statistics: %w", err)
	}

	return rows, nil
}

// CleanupOldStatistics deletes statistics that have not been updated within
// the retention window and whose project is archived or deleted. Returns the
// number of records removed.
func (r *Repository) CleanupOldStatistics(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = models.RetentionConfig{}.RetentionDays()
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	inactive := r.db.Model(&models.Project{}).
		Select("id").
		Where("status IN ?", []string{string(models.ProjectStatusArchived), string(models.ProjectStatusDeleted)})

	res := r.db.WithContext(ctx).
		Where("last_updated < ?", cutoff).
		Where("project_id IN (?)", inactive).
		Delete(&models.ProjectStatistics{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clean up statistics: %w", res.Error)
	}

	return res.RowsAffected, nil
}

// GetGlobalStatistics aggregates across all projects. An empty table yields
// zero values rather than an error.
func (r *Repository) GetGlobalStatistics(ctx context.Context) (*models.GlobalStatistics, error) {
	var global models.GlobalStatistics

	err := r.db.WithContext(ctx).
		Model(&models.ProjectStatistics{}).
		Select(
			"COUNT(*) as total_projects",
			"COALESCE(SUM(cost_total), 0) as total_cost",
			"COALESCE(SUM(documents_generated), 0) as total_documents",
			"COALESCE(AVG(quality_score), 0) as average_quality_score",
		).
		Scan(&global).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate global statistics: %w", err)
	}

	global.GeneratedAt = time.Now().UTC()

	return &global, nil
}
