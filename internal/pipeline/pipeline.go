package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/procluster/pkg/hierarchy"
	"github.com/thebtf/procluster/pkg/models"
	"github.com/thebtf/procluster/pkg/similarity"
)

// Result holds every output of one run. Names fixes the axis order shared by
// the matrix rows, the tree leaves and the assignment.
type Result struct {
	Matrix     *similarity.DistanceMatrix `json:"matrix"`
	Tree       *hierarchy.Tree            `json:"tree"`
	Assignment *hierarchy.Assignment      `json:"assignment"`
	Names      []string                   `json:"names"`
	EntitySets []similarity.EntitySet     `json:"-"`
	Options    Options                    `json:"options"`
}

// Threshold returns the distance threshold, if the run was cut by one.
func (r *Result) Threshold() (float64, bool) {
	if r.Options.Selector.Threshold == nil {
		return 0, false
	}
	return *r.Options.Selector.Threshold, true
}

// Run executes entity sets -> distance matrix -> merge tree -> assignment.
// Configuration errors are reported before any computation; fewer than two
// records is ErrDegenerateInput.
func Run(ctx context.Context, records []models.ProcedureRecord, opts Options) (result *Result, err error) {
	defer func() { countRun(ctx, err) }()

	opts = opts.withDefaults()
	if err := opts.Validate(len(records)); err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: %d procedure(s), need at least 2", models.ErrDegenerateInput, len(records))
	}

	log.Info().
		Int("procedures", len(records)).
		Str("linkage", string(opts.Linkage)).
		Str("selector", opts.Selector.String()).
		Msg("Clustering procedures")

	res := &Result{Names: models.Names(records), Options: opts}

	if err := stage(ctx, "entity_sets", func(context.Context) error {
		sets, err := similarity.BuildEntitySets(records, opts.Delimiter)
		res.EntitySets = sets
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage(ctx, "distance_matrix", func(context.Context) error {
		m, err := similarity.ComputeDistanceMatrix(res.EntitySets, opts.Workers)
		res.Matrix = m
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage(ctx, "linkage", func(context.Context) error {
		tree, err := hierarchy.Link(res.Matrix, opts.Linkage)
		res.Tree = tree
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage(ctx, "assign", func(context.Context) error {
		a, err := hierarchy.Assign(res.Tree, res.Names, opts.Selector)
		res.Assignment = a
		return err
	}); err != nil {
		return nil, err
	}

	log.Info().
		Int("procedures", len(res.Names)).
		Int("clusters", res.Assignment.Count()).
		Msg("Clustering finished")

	return res, nil
}

// Fingerprint returns a stable key for records and opts, used to cache results.
func Fingerprint(records []models.ProcedureRecord, opts Options) (string, error) {
	opts = opts.withDefaults()
	rows := make([]models.ProcedureRecordJSON, len(records))
	for i, rec := range records {
		rows[i] = rec.ToJSON()
	}
	payload := struct {
		Records []models.ProcedureRecordJSON `json:"records"`
		Linkage hierarchy.Linkage            `json:"linkage"`
		Delim   string                       `json:"delimiter"`
		Sel     hierarchy.Selector           `json:"selector"`
	}{rows, opts.Linkage, opts.Delimiter, opts.Selector}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
