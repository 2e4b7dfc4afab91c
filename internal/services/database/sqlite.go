package database

import (
	"fmt"

	"github.com/nibernar/statistics-service/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func sqliteDialector(config models.DatabaseConfig) (gorm.Dialector, *gorm.Config, string, error) {
	if config.FilePath == "" {
		return nil, nil, "", fmt.Errorf("file_path is required for SQLite")
	}
	return sqlite.Open(config.FilePath), baseGormConfig(), "sqlite3", nil
}
