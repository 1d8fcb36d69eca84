// Package gorm provides GORM-based persistence for clustering runs.
package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/thebtf/procluster/internal/export"
	"github.com/thebtf/procluster/internal/pipeline"
	"github.com/thebtf/procluster/pkg/hierarchy"
	"github.com/thebtf/procluster/pkg/models"
	"github.com/thebtf/procluster/pkg/similarity"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// insertBatchSize bounds rows per INSERT for matrix cells.
const insertBatchSize = 500

// NewRun is everything persisted for one pipeline execution.
type NewRun struct {
	Result   *pipeline.Result
	Source   string
	Records  []models.ProcedureRecord
	Sections []export.Section
}

// RunDetail is a stored run rebuilt into pipeline types.
type RunDetail struct {
	Result   *pipeline.Result         `json:"result"`
	Summary  models.RunSummary        `json:"summary"`
	Records  []models.ProcedureRecord `json:"-"`
	Sections []string                 `json:"sections"`
}

// RunStore provides run-related database operations using GORM.
type RunStore struct {
	db *gorm.DB
}

// NewRunStore creates a new run store.
func NewRunStore(store *Store) *RunStore {
	return &RunStore{db: store.DB}
}

// SaveRun stores a run with its rows, matrix, merges and sections in one transaction.
func (s *RunStore) SaveRun(ctx context.Context, in NewRun) (*models.RunSummary, error) {
	res := in.Result
	if res == nil || res.Matrix == nil || res.Tree == nil || res.Assignment == nil {
		return nil, fmt.Errorf("save run: incomplete result")
	}
	if len(in.Records) != len(res.Names) {
		return nil, fmt.Errorf("save run: %d records for %d names", len(in.Records), len(res.Names))
	}

	fingerprint, err := pipeline.Fingerprint(in.Records, res.Options)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	run := &Run{
		ID:             uuid.NewString(),
		Fingerprint:    fingerprint,
		Source:         in.Source,
		Linkage:        string(res.Tree.Method),
		Selector:       res.Options.Selector.String(),
		Delimiter:      res.Options.Delimiter,
		Procedures:     len(res.Names),
		Clusters:       res.Assignment.Count(),
		CreatedAt:      now.Format(time.RFC3339),
		CreatedAtEpoch: now.UnixMilli(),
	}
	if t := res.Options.Selector.Threshold; t != nil {
		run.Threshold = sql.NullFloat64{Float64: *t, Valid: true}
	}
	if k := res.Options.Selector.ClusterCount; k != nil {
		run.ClusterCount = sql.NullInt64{Int64: int64(*k), Valid: true}
	}

	procs := make([]RunProcedure, len(in.Records))
	for i, rec := range in.Records {
		procs[i] = RunProcedure{
			RunID:       run.ID,
			Position:    i,
			Name:        rec.Name,
			Attributes:  rec.Attributes,
			Invocations: rec.Invocations,
			Cluster:     res.Assignment.Labels[i],
		}
	}

	n := res.Matrix.Size()
	cells := make([]RunDistance, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			cells = append(cells, RunDistance{RunID: run.ID, RowIdx: i, ColIdx: j, Distance: res.Matrix.At(i, j)})
		}
	}

	merges := make([]RunMerge, len(res.Tree.Merges))
	for k, m := range res.Tree.Merges {
		merges[k] = RunMerge{RunID: run.ID, Step: k, LeftID: m.Left, RightID: m.Right, Distance: m.Distance, Size: m.Size}
	}

	artifacts := make([]RunArtifact, len(in.Sections))
	for i, sec := range in.Sections {
		artifacts[i] = RunArtifact{RunID: run.ID, Section: sec.Name, ContentType: sec.ContentType, Data: sec.Data}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if err := tx.CreateInBatches(procs, insertBatchSize).Error; err != nil {
			return err
		}
		if len(cells) > 0 {
			if err := tx.CreateInBatches(cells, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(merges) > 0 {
			if err := tx.Create(&merges).Error; err != nil {
				return err
			}
		}
		if len(artifacts) > 0 {
			return tx.Create(&artifacts).Error
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	log.Debug().Str("run", run.ID).Int("procedures", run.Procedures).Msg("Stored run")
	summary := toSummary(run)
	return &summary, nil
}

// GetRun loads a run and rebuilds its result.
func (s *RunStore) GetRun(ctx context.Context, id string) (*RunDetail, error) {
	var run Run
	err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var procs []RunProcedure
	if err := s.db.WithContext(ctx).Where("run_id = ?", id).Order("position").Find(&procs).Error; err != nil {
		return nil, err
	}
	var cells []RunDistance
	if err := s.db.WithContext(ctx).Where("run_id = ?", id).Find(&cells).Error; err != nil {
		return nil, err
	}
	var merges []RunMerge
	if err := s.db.WithContext(ctx).Where("run_id = ?", id).Order("step").Find(&merges).Error; err != nil {
		return nil, err
	}
	var sections []string
	if err := s.db.WithContext(ctx).Model(&RunArtifact{}).Where("run_id = ?", id).Order("id").Pluck("section", &sections).Error; err != nil {
		return nil, err
	}

	names := make([]string, len(procs))
	labels := make([]int, len(procs))
	records := make([]models.ProcedureRecord, len(procs))
	for i, p := range procs {
		names[i] = p.Name
		labels[i] = p.Cluster
		records[i] = models.ProcedureRecord{Name: p.Name, Attributes: p.Attributes, Invocations: p.Invocations}
	}

	matrix := similarity.NewDistanceMatrix(names)
	for _, c := range cells {
		if c.RowIdx >= len(names) || c.ColIdx >= len(names) {
			return nil, fmt.Errorf("run %s: distance cell (%d, %d) out of range", id, c.RowIdx, c.ColIdx)
		}
		matrix.Values[c.RowIdx][c.ColIdx] = c.Distance
		matrix.Values[c.ColIdx][c.RowIdx] = c.Distance
	}

	tree := &hierarchy.Tree{
		Method: hierarchy.Linkage(run.Linkage),
		Leaves: len(names),
		Merges: make([]hierarchy.Merge, len(merges)),
	}
	for k, m := range merges {
		tree.Merges[k] = hierarchy.Merge{Left: m.LeftID, Right: m.RightID, Distance: m.Distance, Size: m.Size}
	}

	summary := toSummary(&run)
	return &RunDetail{
		Summary:  summary,
		Records:  records,
		Sections: sections,
		Result: &pipeline.Result{
			Matrix:     matrix,
			Tree:       tree,
			Assignment: &hierarchy.Assignment{Names: names, Labels: labels},
			Names:      names,
			Options: pipeline.Options{
				Linkage:   tree.Method,
				Delimiter: run.Delimiter,
				Selector: hierarchy.Selector{
					Threshold:    summary.Threshold,
					ClusterCount: summary.ClusterCount,
				},
			},
		},
	}, nil
}

// ListRuns returns the most recent runs first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var runs []Run
	err := s.db.WithContext(ctx).
		Order("created_at_epoch DESC, id").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.RunSummary, len(runs))
	for i := range runs {
		out[i] = toSummary(&runs[i])
	}
	return out, nil
}

// GetArtifact returns one stored section of a run.
func (s *RunStore) GetArtifact(ctx context.Context, runID, section string) (*RunArtifact, error) {
	var a RunArtifact
	err := s.db.WithContext(ctx).
		Where("run_id = ? AND section = ?", runID, section).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrRunNotFound, runID, section)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteRun removes a run and everything stored with it.
func (s *RunStore) DeleteRun(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{&RunArtifact{}, &RunMerge{}, &RunDistance{}, &RunProcedure{}} {
			if err := tx.Where("run_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		res := tx.Where("id = ?", id).Delete(&Run{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil
	})
}

func toSummary(r *Run) models.RunSummary {
	out := models.RunSummary{
		ID:             r.ID,
		Fingerprint:    r.Fingerprint,
		Source:         r.Source,
		Linkage:        r.Linkage,
		Selector:       r.Selector,
		Procedures:     r.Procedures,
		Clusters:       r.Clusters,
		CreatedAt:      r.CreatedAt,
		CreatedAtEpoch: r.CreatedAtEpoch,
	}
	if r.Threshold.Valid {
		t := r.Threshold.Float64
		out.Threshold = &t
	}
	if r.ClusterCount.Valid {
		k := int(r.ClusterCount.Int64)
		out.ClusterCount = &k
	}
	return out
}
