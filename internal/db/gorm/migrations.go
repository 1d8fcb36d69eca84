// Package gorm provides GORM-based persistence for clustering runs.
package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: runs and their per-procedure rows
		{
			ID: "001_runs",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&Run{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&RunProcedure{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("run_procedures", "runs")
			},
		},

		// Migration 002: distance matrix cells and merge steps
		{
			ID: "002_run_tree",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&RunDistance{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&RunMerge{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("run_merges", "run_distances")
			},
		},

		// Migration 003: exported sections
		{
			ID: "003_run_artifacts",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&RunArtifact{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("run_artifacts")
			},
		},

		// Migration 004: lookup of runs by source
		{
			ID: "004_runs_source_index",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec("CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source, created_at_epoch)").Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP INDEX IF EXISTS idx_runs_source").Error
			},
		},
	})

	return m.Migrate()
}
