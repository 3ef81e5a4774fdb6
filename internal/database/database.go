package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/pkg/config"
)

type DB struct {
	*gorm.DB
}

// Options selects the driver and pool settings
type Options struct {
	Driver          string // sqlite (default) or postgres
	Path            string // sqlite file, ":memory:" or empty for in-memory
	DSN             string // postgres connection string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Verbose         bool
}

// OptionsFromConfig maps the database config section onto Options
func OptionsFromConfig(c config.DatabaseConfig) Options {
	return Options{
		Driver:          c.Driver,
		Path:            c.Path,
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxConnections,
		MaxIdleConns:    c.MaxIdleConnections,
		ConnMaxLifetime: c.ConnectionMaxLifetime,
		Verbose:         c.Verbose,
	}
}

func isMemory(path string) bool {
	return path == "" || path == ":memory:"
}

// Initialize opens a database connection for the configured driver
func Initialize(opts Options) (*DB, error) {
	logLevel := gormlogger.Error
	if opts.Verbose {
		logLevel = gormlogger.Info
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var dialector gorm.Dialector
	switch opts.Driver {
	case "", "sqlite":
		if !isMemory(opts.Path) {
			if dir := filepath.Dir(opts.Path); dir != "" && dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return nil, fmt.Errorf("failed to create database directory: %w", err)
				}
			}
		}
		path := opts.Path
		if path == "" {
			path = ":memory:"
		}
		dialector = sqlite.Open(path)
	case "postgres":
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires a dsn")
		}
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL database: %w", err)
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	// Every connection to :memory: is a separate database
	if opts.Driver != "postgres" && isMemory(opts.Path) {
		maxOpen = 1
	}
	maxIdle := opts.MaxIdleConns
	if maxIdle <= 0 || maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	lifetime := opts.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}

	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)

	return &DB{DB: db}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL database: %w", err)
	}
	return sqlDB.Close()
}

// HealthCheck verifies the database connection is working
func (db *DB) HealthCheck(ctx context.Context) error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("database not initialized")
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL database: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// AutoMigrate migrates every application model
func (db *DB) AutoMigrate() error {
	if err := db.DB.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}
	return nil
}

// PendingTables lists model tables that do not exist yet
func (db *DB) PendingTables() ([]string, error) {
	var pending []string
	for _, m := range models.All() {
		stmt := &gorm.Statement{DB: db.DB}
		if err := stmt.Parse(m); err != nil {
			return nil, fmt.Errorf("parsing model %T: %w", m, err)
		}
		if !db.Migrator().HasTable(stmt.Schema.Table) {
			pending = append(pending, stmt.Schema.Table)
		}
	}
	return pending, nil
}
