// Package gorm provides GORM-based persistence for clustering runs.
package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"
)

// Run is one pipeline execution.
type Run struct {
	ID             string          `gorm:"primaryKey;type:varchar(36)"`
	Fingerprint    string          `gorm:"type:varchar(64);index;not null"`
	Source         string          `gorm:"type:text"`
	Linkage        string          `gorm:"type:varchar(16);check:linkage IN ('single', 'complete', 'average', 'weighted');not null"`
	Selector       string          `gorm:"type:text;not null"`
	Threshold      sql.NullFloat64
	ClusterCount   sql.NullInt64
	Delimiter      string `gorm:"type:varchar(8);not null"`
	Procedures     int    `gorm:"not null"`
	Clusters       int    `gorm:"not null"`
	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"index:idx_runs_created,sort:desc;not null"`
}

func (Run) TableName() string { return "runs" }

// BeforeCreate hook to ensure timestamps are set.
func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedAtEpoch == 0 {
		r.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if r.CreatedAt == "" {
		r.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// RunProcedure is one input row of a run with its cluster label.
type RunProcedure struct {
	ID          int64          `gorm:"primaryKey;autoIncrement"`
	RunID       string         `gorm:"type:varchar(36);index:idx_run_procedures_run,priority:1;not null"`
	Position    int            `gorm:"index:idx_run_procedures_run,priority:2;not null"`
	Name        string         `gorm:"type:text;not null"`
	Attributes  sql.NullString `gorm:"type:text"`
	Invocations sql.NullString `gorm:"type:text"`
	Cluster     int            `gorm:"not null"`
}

func (RunProcedure) TableName() string { return "run_procedures" }

// RunDistance is one upper-triangle cell (RowIdx < ColIdx) of the distance matrix.
type RunDistance struct {
	ID       int64   `gorm:"primaryKey;autoIncrement"`
	RunID    string  `gorm:"type:varchar(36);index:idx_run_distances_run;not null"`
	RowIdx   int     `gorm:"not null"`
	ColIdx   int     `gorm:"not null"`
	Distance float64 `gorm:"not null"`
}

func (RunDistance) TableName() string { return "run_distances" }

// RunMerge is one agglomeration step.
type RunMerge struct {
	ID       int64   `gorm:"primaryKey;autoIncrement"`
	RunID    string  `gorm:"type:varchar(36);index:idx_run_merges_run,priority:1;not null"`
	Step     int     `gorm:"index:idx_run_merges_run,priority:2;not null"`
	LeftID   int     `gorm:"not null"`
	RightID  int     `gorm:"not null"`
	Distance float64 `gorm:"not null"`
	Size     int     `gorm:"not null"`
}

func (RunMerge) TableName() string { return "run_merges" }

// RunArtifact is a named export section stored with a run.
type RunArtifact struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	RunID       string `gorm:"type:varchar(36);uniqueIndex:idx_run_artifacts_section,priority:1;not null"`
	Section     string `gorm:"type:varchar(32);uniqueIndex:idx_run_artifacts_section,priority:2;check:section IN ('Distance_Matrix', 'Results', 'Dendrogram');not null"`
	ContentType string `gorm:"type:varchar(64);not null"`
	Data        []byte `gorm:"not null"`
	CreatedAt   string `gorm:"not null"`
}

func (RunArtifact) TableName() string { return "run_artifacts" }

// BeforeCreate hook to ensure timestamps are set.
func (a *RunArtifact) BeforeCreate(tx *gorm.DB) error {
	if a.CreatedAt == "" {
		a.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}
