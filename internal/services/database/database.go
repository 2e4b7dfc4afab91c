package database

import (
	"fmt"
	"time"

	"github.com/nibernar/statistics-service/internal/models"
	"gorm.io/gorm"
)

// DB wraps the GORM handle together with the driver name so callers can
// branch on dialect (clickhouse migrations, row-locking support) without
// re-reading the config.
type DB struct {
	*gorm.DB
	config     models.DatabaseConfig
	driverName string
}

// New opens the statistics database described by the config. Every driver
// goes through the same pool setup and connectivity check.
func New(config models.DatabaseConfig) (*DB, error) {
	var (
		dialector  gorm.Dialector
		gormConfig *gorm.Config
		driverName string
		err        error
	)

	switch config.Type {
	case models.PostgreSQL:
		dialector, gormConfig, driverName, err = postgresDialector(config)
	case models.MySQL:
		dialector, gormConfig, driverName, err = mysqlDialector(config)
	case models.SQLite:
		dialector, gormConfig, driverName, err = sqliteDialector(config)
	case models.ClickHouse:
		dialector, gormConfig, driverName, err = clickhouseDialector(config)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	gormDB, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", config.Type, err)
	}

	db := &DB{DB: gormDB, config: config, driverName: driverName}
	if err := db.applyPoolSettings(); err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping %s: %w", config.Type, err)
	}
	return db, nil
}

// baseGormConfig is shared by all SQL drivers. TranslateError maps driver
// duplicate-key errors onto gorm.ErrDuplicatedKey, which the repositories
// rely on for conflict detection.
func baseGormConfig() *gorm.Config {
	return &gorm.Config{TranslateError: true}
}

func (db *DB) applyPoolSettings() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access connection pool: %w", err)
	}

	if db.config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(db.config.MaxOpenConns)
	}
	if db.config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(db.config.MaxIdleConns)
	}
	if db.config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(db.config.ConnMaxLifetime) * time.Minute)
	}
	return nil
}

func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (db *DB) Ping() error {
	if db.DB == nil {
		return fmt.Errorf("database not connected")
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DriverName reports the underlying driver ("postgres", "mysql", "sqlite3",
// "clickhouse").
func (db *DB) DriverName() string {
	return db.driverName
}
