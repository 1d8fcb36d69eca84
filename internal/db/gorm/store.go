// Package gorm provides GORM-based persistence for clustering runs.
package gorm

import (
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // registers the pure-Go "sqlite" driver
)

// Dialects supported by NewStore.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Store represents the GORM database connection.
type Store struct {
	DB      *gorm.DB
	sqlDB   *sql.DB
	dialect string
}

// Config holds database configuration.
type Config struct {
	DSN      string          // SQLite file path or postgres:// URL
	MaxConns int             // Maximum number of open connections (default: 4)
	LogLevel logger.LogLevel // GORM log level (logger.Silent for production)
}

// DialectOf returns the dialect a DSN selects.
func DialectOf(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// NewStore opens the database named by cfg.DSN and runs migrations.
// SQLite databases get WAL mode and foreign keys via pragmas.
func NewStore(cfg Config) (*Store, error) {
	gcfg := &gorm.Config{
		Logger:      logger.Default.LogMode(cfg.LogLevel),
		PrepareStmt: true,
	}

	dialect := DialectOf(cfg.DSN)
	var (
		db    *gorm.DB
		sqlDB *sql.DB
		err   error
	)
	switch dialect {
	case DialectPostgres:
		db, err = gorm.Open(postgres.Open(cfg.DSN), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open gorm: %w", err)
		}
		sqlDB, err = db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
	default:
		// Open with the modernc driver and hand the connection to the
		// gorm sqlite dialector.
		sep := "?"
		if strings.Contains(cfg.DSN, "?") {
			sep = "&"
		}
		sqlDB, err = sql.Open("sqlite", cfg.DSN+sep+"_pragma=foreign_keys(1)")
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db, err = gorm.Open(sqlite.Dialector{DriverName: "sqlite", Conn: sqlDB}, gcfg)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("open gorm: %w", err)
		}
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{DB: db, sqlDB: sqlDB, dialect: dialect}

	// Run migrations FIRST (before PRAGMA commands)
	if err := runMigrations(db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if dialect == DialectSQLite {
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
			// Retry for 5 seconds when the database is locked
			"PRAGMA busy_timeout=5000",
		}
		for _, p := range pragmas {
			if _, err := sqlDB.Exec(p); err != nil {
				_ = sqlDB.Close()
				return nil, fmt.Errorf("%s: %w", p, err)
			}
		}
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	return s.sqlDB.Ping()
}

// Dialect returns DialectSQLite or DialectPostgres.
func (s *Store) Dialect() string {
	return s.dialect
}

// GetRawDB returns the underlying *sql.DB.
func (s *Store) GetRawDB() *sql.DB {
	return s.sqlDB
}

// GetDB returns the GORM DB instance for standard queries.
func (s *Store) GetDB() *gorm.DB {
	return s.DB
}
