package gorm

import (
	"os"
	"path/filepath"
	"testing"

	"gorm.io/gorm/logger"
)

func TestNewStore(t *testing.T) {
	// Create temporary directory for test database
	tmpDir, err := os.MkdirTemp("", "gorm_test_*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := Config{
		DSN:      filepath.Join(tmpDir, "test.db"),
		MaxConns: 4,
		LogLevel: logger.Silent,
	}

	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if store.Dialect() != DialectSQLite {
		t.Errorf("expected sqlite dialect, got %q", store.Dialect())
	}

	// Verify WAL mode is enabled
	var journalMode string
	err = store.DB.Raw("PRAGMA journal_mode").Scan(&journalMode).Error
	if err != nil {
		t.Fatalf("query journal_mode failed: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("expected WAL mode, got %q", journalMode)
	}

	tables := []string{
		"runs",
		"run_procedures",
		"run_distances",
		"run_merges",
		"run_artifacts",
	}
	for _, table := range tables {
		if !store.DB.Migrator().HasTable(table) {
			t.Errorf("table %q does not exist", table)
		}
	}
}

func TestNewStoreDSNWithQuery(t *testing.T) {
	// the foreign key pragma is appended with & when the DSN has a query
	dsn := "file:" + filepath.Join(t.TempDir(), "query.db") + "?_txlock=immediate"
	store, err := NewStore(Config{DSN: dsn, LogLevel: logger.Silent})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	var foreignKeys int
	if err := store.GetRawDB().QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("query foreign_keys failed: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("expected foreign keys on, got %d", foreignKeys)
	}
}

func TestNewStoreBadPath(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "missing", "dir", "test.db")
	if store, err := NewStore(Config{DSN: dsn, LogLevel: logger.Silent}); err == nil {
		store.Close()
		t.Fatal("expected an error for a database in a missing directory")
	}
}

func TestMigrationIdempotency(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := Config{
		DSN:      filepath.Join(tmpDir, "test.db"),
		LogLevel: logger.Silent,
	}

	// Run migrations first time
	store1, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore (first) failed: %v", err)
	}
	store1.Close()

	// Run migrations second time (should be idempotent)
	store2, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore (second) failed: %v", err)
	}
	defer store2.Close()

	var applied int64
	if err := store2.DB.Table("migrations").Count(&applied).Error; err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 4 {
		t.Errorf("expected 4 applied migrations, got %d", applied)
	}
}

func TestDialectOf(t *testing.T) {
	tests := map[string]string{
		"/tmp/procluster.db":                 DialectSQLite,
		"file:test.db?cache=shared":          DialectSQLite,
		"postgres://user@localhost/db":       DialectPostgres,
		"postgresql://user@localhost:5432/x": DialectPostgres,
	}
	for dsn, want := range tests {
		if got := DialectOf(dsn); got != want {
			t.Errorf("DialectOf(%q) = %q, want %q", dsn, got, want)
		}
	}
}
