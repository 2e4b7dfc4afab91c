package database

import (
	"fmt"

	"github.com/nibernar/statistics-service/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func mysqlDialector(config models.DatabaseConfig) (gorm.Dialector, *gorm.Config, string, error) {
	dsn := config.DSN
	if dsn == "" {
		// parseTime is required so last_updated scans into time.Time.
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			config.Username, config.Password, config.Host, config.Port, config.Database)
	}
	return mysql.Open(dsn), baseGormConfig(), "mysql", nil
}
