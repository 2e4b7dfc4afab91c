package database

import (
	"fmt"

	"github.com/nibernar/statistics-service/internal/models"
	"gorm.io/driver/clickhouse"
	"gorm.io/gorm"
)

func clickhouseDialector(config models.DatabaseConfig) (gorm.Dialector, *gorm.Config, string, error) {
	dsn := config.DSN
	if dsn == "" {
		dsn = fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s",
			config.Username, config.Password, config.Host, config.Port, config.Database)
	}

	dialector := clickhouse.New(clickhouse.Config{
		DSN:                    dsn,
		DefaultGranularity:     3,
		DefaultCompression:     "LZ4",
		DefaultIndexType:       "minmax",
		DefaultTableEngineOpts: "ENGINE=MergeTree() ORDER BY id",
	})

	gormConfig := baseGormConfig()
	// The clickhouse driver panics on prepared SELECTs and column
	// introspection, see go-gorm/gorm#7493.
	gormConfig.PrepareStmt = false

	return dialector, gormConfig, "clickhouse", nil
}
