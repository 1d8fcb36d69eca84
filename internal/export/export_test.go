package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/procluster/internal/pipeline"
	"github.com/thebtf/procluster/pkg/hierarchy"
	"github.com/thebtf/procluster/pkg/models"
)

func exampleResult(t *testing.T) *pipeline.Result {
	t.Helper()
	records := []models.ProcedureRecord{
		models.NewProcedureRecord("P1", "a;b", ""),
		models.NewProcedureRecord("P2", "a;c", ""),
		models.NewProcedureRecord("P3", "x;y", ""),
	}
	opts := pipeline.DefaultOptions()
	opts.Selector = hierarchy.ByThreshold(0.7)

	res, err := pipeline.Run(context.Background(), records, opts)
	require.NoError(t, err)
	return res
}

func TestDistanceMatrixCSV(t *testing.T) {
	data, err := DistanceMatrixCSV(exampleResult(t))
	require.NoError(t, err)

	want := ",P1,P2,P3\n" +
		"P1,0.00,0.67,0.86\n" +
		"P2,0.67,0.00,0.86\n" +
		"P3,0.86,0.86,0.00\n"
	assert.Equal(t, want, string(data))
}

func TestResultsCSV(t *testing.T) {
	data, err := ResultsCSV(exampleResult(t))
	require.NoError(t, err)
	assert.Equal(t, "Procedure,Cluster\nP1,0\nP2,0\nP3,1\n", string(data))
}

func TestSections(t *testing.T) {
	res := exampleResult(t)

	sections, err := Sections(res, nil)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, SectionDistanceMatrix, sections[0].Name)
	assert.Equal(t, SectionResults, sections[1].Name)

	sections, err = Sections(res, []byte("%PDF-1.3"))
	require.NoError(t, err)
	require.Len(t, sections, 3)
	assert.Equal(t, "out_Dendrogram.pdf", sections[2].FileName("out"))
	assert.Equal(t, "application/pdf", sections[2].ContentType)
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	res := exampleResult(t)

	paths, err := Write(dir, "out", res, []byte("%PDF-1.3"))
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{
		"out_Distance_Matrix.csv",
		"out_Results.csv",
		"out_Dendrogram.pdf",
		"out.json",
	}, names)

	raw, err := os.ReadFile(filepath.Join(dir, "out.json"))
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, hierarchy.LinkageAverage, doc.Linkage)
	assert.Equal(t, map[string]int{"P1": 0, "P2": 0, "P3": 1}, doc.Labels)
	assert.Equal(t, 2, doc.Clusters)
	require.Len(t, doc.Merges, 2)
	assert.Equal(t, 0.67, doc.Merges[0].Distance)
	require.NotNil(t, doc.Selector.Threshold)
	assert.Equal(t, 0.7, *doc.Selector.Threshold)
}
