package hierarchy

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thebtf/procluster/pkg/models"
	"github.com/thebtf/procluster/pkg/similarity"
)

// matrixOf builds a matrix named a, b, c... from a full value grid.
func matrixOf(t *testing.T, values [][]float64) *similarity.DistanceMatrix {
	t.Helper()
	names := make([]string, len(values))
	for i := range names {
		names[i] = string(rune('a' + i))
	}
	m := &similarity.DistanceMatrix{Names: names, Values: values}
	require.NoError(t, m.Validate())
	return m
}

// randomMatrix derives a realistic matrix from random entity sets.
func randomMatrix(t *testing.T, seed int64, n int) *similarity.DistanceMatrix {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	vocab := []string{"id", "name", "total", "count", "save", "load", "log", "open", "close", "parse", "emit"}

	records := make([]models.ProcedureRecord, n)
	for i := range records {
		pick := func() string {
			var out string
			for k := 0; k < 1+rng.Intn(4); k++ {
				if k > 0 {
					out += ";"
				}
				out += vocab[rng.Intn(len(vocab))]
			}
			return out
		}
		records[i] = models.NewProcedureRecord(fmt.Sprintf("proc%02d", i), pick(), pick())
	}
	sets, err := similarity.BuildEntitySets(records, ";")
	require.NoError(t, err)
	m, err := similarity.ComputeDistanceMatrix(sets, 2)
	require.NoError(t, err)
	return m
}

// fourPoints has two tight pairs, (a,b) and (c,d).
func fourPoints(t *testing.T) *similarity.DistanceMatrix {
	return matrixOf(t, [][]float64{
		{0, 0.1, 0.5, 0.9},
		{0.1, 0, 0.4, 0.8},
		{0.5, 0.4, 0, 0.3},
		{0.9, 0.8, 0.3, 0},
	})
}
