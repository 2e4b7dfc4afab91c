package database

import (
	"fmt"

	"gorm.io/gorm"
)

// RunClickHouseMigrations creates the statistics tables directly without using
// GORM's AutoMigrate (which has issues with the ClickHouse driver)
func RunClickHouseMigrations(db *gorm.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id String,
			name String,
			description String,
			status String DEFAULT 'active',
			created_at DateTime DEFAULT now(),
			updated_at DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY id`,

		`CREATE TABLE IF NOT EXISTS project_statistics (
			id String,
			project_id String,
			costs String,
			performance String,
			usage String,
			metadata String,
			cost_total Float64,
			documents_generated Int64,
			total_time_seconds Float64,
			quality_score Float64,
			sources_list String DEFAULT '',
			version Int64 DEFAULT 1,
			last_updated DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (project_id, last_updated)`,
	}

	for _, query := range queries {
		if err := db.Exec(query).Error; err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	indexSQL := []string{
		`CREATE INDEX IF NOT EXISTS idx_projects_status ON projects (status) TYPE minmax GRANULARITY 3`,
		`CREATE INDEX IF NOT EXISTS idx_project_statistics_cost_total ON project_statistics (cost_total) TYPE minmax GRANULARITY 3`,
		`CREATE INDEX IF NOT EXISTS idx_project_statistics_documents ON project_statistics (documents_generated) TYPE minmax GRANULARITY 3`,
		`CREATE INDEX IF NOT EXISTS idx_project_statistics_last_updated ON project_statistics (last_updated) TYPE minmax GRANULARITY 3`,
	}

	for _, sql := range indexSQL {
		if err := db.Exec(sql).Error; err != nil {
			// Indexes might already exist, continue
			continue
		}
	}

	return nil
}
