// Package runner executes one clustering job end to end: pipeline, rendering,
// exports and persistence.
package runner

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/procluster/internal/cache"
	"github.com/thebtf/procluster/internal/db/gorm"
	"github.com/thebtf/procluster/internal/export"
	"github.com/thebtf/procluster/internal/pipeline"
	"github.com/thebtf/procluster/internal/render"
	"github.com/thebtf/procluster/pkg/models"
)

// Runner wires the optional collaborators around pipeline.Run.
// Every field may be left zero.
type Runner struct {
	Cache   *cache.Cache
	Runs    *gorm.RunStore
	OutDir  string // exports are written here when non-empty
	OutName string
}

// Outcome is what one execution produced.
type Outcome struct {
	Result     *pipeline.Result
	Summary    *models.RunSummary // nil unless stored
	Dendrogram []byte
	Files      []string
	Cached     bool
}

// Execute clusters records and hands the result to the exporters and store.
// source names the input (a path or "api") for the stored run.
func (r *Runner) Execute(ctx context.Context, source string, records []models.ProcedureRecord, opts pipeline.Options) (*Outcome, error) {
	res, cached, err := r.Cache.Run(ctx, records, opts)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Result: res, Cached: cached}

	var threshold *float64
	if t, ok := res.Threshold(); ok {
		threshold = &t
	}
	out.Dendrogram, err = render.RenderPDF(res.Tree, res.Names, threshold)
	if err != nil {
		return nil, fmt.Errorf("render dendrogram: %w", err)
	}

	if r.OutDir != "" {
		name := r.OutName
		if name == "" {
			name = "out"
		}
		out.Files, err = export.Write(r.OutDir, name, res, out.Dendrogram)
		if err != nil {
			return nil, err
		}
	}

	if r.Runs != nil {
		sections, err := export.Sections(res, out.Dendrogram)
		if err != nil {
			return nil, err
		}
		out.Summary, err = r.Runs.SaveRun(ctx, gorm.NewRun{
			Result:   res,
			Source:   source,
			Records:  records,
			Sections: sections,
		})
		if err != nil {
			return nil, err
		}
	}

	log.Info().
		Str("source", source).
		Int("procedures", len(res.Names)).
		Int("clusters", res.Assignment.Count()).
		Bool("cached", cached).
		Msg("Clustering complete")
	return out, nil
}
