package similarity

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/procluster/pkg/models"
)

// DistanceMatrix is a square, symmetric matrix of rounded Jaccard distances.
// Both axes follow Names, which is the input row order. Dendrogram leaf
// labels, merge-tree leaf ids and cluster labels all index into that order.
type DistanceMatrix struct {
	Names  []string    `json:"names"`
	Values [][]float64 `json:"values"`
}

// NewDistanceMatrix allocates an all-zero matrix for names.
func NewDistanceMatrix(names []string) *DistanceMatrix {
	values := make([][]float64, len(names))
	for i := range values {
		values[i] = make([]float64, len(names))
	}
	return &DistanceMatrix{Names: names, Values: values}
}

// Size returns N.
func (m *DistanceMatrix) Size() int {
	return len(m.Names)
}

// At returns the distance between rows i and j.
func (m *DistanceMatrix) At(i, j int) float64 {
	return m.Values[i][j]
}

// Index returns the axis position of a procedure, or -1.
func (m *DistanceMatrix) Index(name string) int {
	for i, n := range m.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Distance looks a distance up by procedure names.
func (m *DistanceMatrix) Distance(a, b string) (float64, bool) {
	i, j := m.Index(a), m.Index(b)
	if i < 0 || j < 0 {
		return 0, false
	}
	return m.Values[i][j], true
}

// Condensed returns the upper triangle in row-major order
// (the layout scipy's squareform produces).
func (m *DistanceMatrix) Condensed() []float64 {
	n := m.Size()
	out := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, m.Values[i][j])
		}
	}
	return out
}

// Validate checks the matrix invariants: square, exactly symmetric,
// zero diagonal and every entry within [0,1].
func (m *DistanceMatrix) Validate() error {
	n := m.Size()
	if len(m.Values) != n {
		return fmt.Errorf("%w: %d rows for %d names", models.ErrInvalidMatrix, len(m.Values), n)
	}
	for i, row := range m.Values {
		if len(row) != n {
			return fmt.Errorf("%w: row %d has %d columns, want %d", models.ErrInvalidMatrix, i, len(row), n)
		}
		if row[i] != 0 {
			return fmt.Errorf("%w: diagonal entry %d is %v", models.ErrInvalidMatrix, i, row[i])
		}
		for j, v := range row {
			if v < 0 || v > 1 {
				return fmt.Errorf("%w: entry (%d,%d)=%v out of range", models.ErrInvalidMatrix, i, j, v)
			}
			if v != m.Values[j][i] {
				return fmt.Errorf("%w: entry (%d,%d) differs from (%d,%d)", models.ErrInvalidMatrix, i, j, j, i)
			}
		}
	}
	return nil
}

// ComputeDistanceMatrix computes pairwise Jaccard distances over sets.
//
// Each unordered pair is evaluated once and the rounded value is written to
// both cells, so symmetry is exact. Rows of the upper triangle are spread over
// at most workers goroutines (0 means GOMAXPROCS); every cell has a single writer.
func ComputeDistanceMatrix(sets []EntitySet, workers int) (*DistanceMatrix, error) {
	names := make([]string, len(sets))
	for i, s := range sets {
		names[i] = s.Procedure
	}
	m := NewDistanceMatrix(names)

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range sets {
		i := i
		g.Go(func() error {
			if sets[i].Len() == 0 {
				return fmt.Errorf("%w: entity set for %q is empty", models.ErrInputShape, sets[i].Procedure)
			}
			for j := i + 1; j < len(sets); j++ {
				d := RoundDistance(JaccardDistance(sets[i], sets[j]))
				m.Values[i][j] = d
				m.Values[j][i] = d
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debug().
		Int("procedures", len(sets)).
		Int("workers", workers).
		Msg("Distance matrix computed")

	return m, nil
}
