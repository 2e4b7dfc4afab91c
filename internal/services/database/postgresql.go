package database

import (
	"fmt"

	"github.com/nibernar/statistics-service/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func postgresDialector(config models.DatabaseConfig) (gorm.Dialector, *gorm.Config, string, error) {
	dsn := config.DSN
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			config.Host, config.Port, config.Username, config.Password,
			config.Database, config.ResolvedSSLMode())
	}
	return postgres.Open(dsn), baseGormConfig(), "postgres", nil
}
