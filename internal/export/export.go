// Package export writes clustering results as named sections on disk.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/procluster/internal/pipeline"
	"github.com/thebtf/procluster/pkg/hierarchy"
)

// Section names. Files are written as <name>_<section><ext>.
const (
	SectionDistanceMatrix = "Distance_Matrix"
	SectionResults        = "Results"
	SectionDendrogram     = "Dendrogram"
)

// Section is one named output of a run.
type Section struct {
	Name        string
	Ext         string
	ContentType string
	Data        []byte
}

// FileName returns the file name of the section for an output name.
func (s Section) FileName(name string) string {
	return name + "_" + s.Name + s.Ext
}

// Document is the JSON summary written next to the sections.
type Document struct {
	Linkage   hierarchy.Linkage  `json:"linkage"`
	Selector  hierarchy.Selector `json:"selector"`
	Names     []string           `json:"names"`
	Distances [][]float64        `json:"distances"`
	Merges    []hierarchy.Merge  `json:"merges"`
	Labels    map[string]int     `json:"labels"`
	Clusters  int                `json:"clusters"`
}

// NewDocument summarizes a result.
func NewDocument(res *pipeline.Result) Document {
	return Document{
		Linkage:   res.Tree.Method,
		Selector:  res.Options.Selector,
		Names:     res.Names,
		Distances: res.Matrix.Values,
		Merges:    res.Tree.Merges,
		Labels:    res.Assignment.Map(),
		Clusters:  res.Assignment.Count(),
	}
}

// DistanceMatrixCSV renders the matrix with procedure names on both axes.
func DistanceMatrixCSV(res *pipeline.Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{""}, res.Names...)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for i, name := range res.Names {
		row := make([]string, 0, len(res.Names)+1)
		row = append(row, name)
		for j := range res.Names {
			row = append(row, strconv.FormatFloat(res.Matrix.At(i, j), 'f', 2, 64))
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ResultsCSV renders one row per procedure with its cluster label.
func ResultsCSV(res *pipeline.Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Procedure", "Cluster"}); err != nil {
		return nil, err
	}
	for i, name := range res.Assignment.Names {
		if err := w.Write([]string{name, strconv.Itoa(res.Assignment.Labels[i])}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Sections builds the three named sections. The dendrogram is the opaque
// artifact produced by the renderer; a nil artifact omits that section.
func Sections(res *pipeline.Result, artifact []byte) ([]Section, error) {
	matrix, err := DistanceMatrixCSV(res)
	if err != nil {
		return nil, fmt.Errorf("distance matrix section: %w", err)
	}
	results, err := ResultsCSV(res)
	if err != nil {
		return nil, fmt.Errorf("results section: %w", err)
	}

	sections := []Section{
		{Name: SectionDistanceMatrix, Ext: ".csv", ContentType: "text/csv", Data: matrix},
		{Name: SectionResults, Ext: ".csv", ContentType: "text/csv", Data: results},
	}
	if artifact != nil {
		sections = append(sections, Section{Name: SectionDendrogram, Ext: ".pdf", ContentType: "application/pdf", Data: artifact})
	}
	return sections, nil
}

// Write stores every section plus <name>.json in dir and returns the paths written.
func Write(dir, name string, res *pipeline.Result, artifact []byte) ([]string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	sections, err := Sections(res, artifact)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, s := range sections {
		path := filepath.Join(dir, s.FileName(name))
		if err := os.WriteFile(path, s.Data, 0600); err != nil {
			return paths, fmt.Errorf("write %s: %w", s.Name, err)
		}
		paths = append(paths, path)
	}

	doc, err := json.MarshalIndent(NewDocument(res), "", "  ")
	if err != nil {
		return paths, fmt.Errorf("marshal summary: %w", err)
	}
	path := filepath.Join(dir, name+".json")
	if err := os.WriteFile(path, doc, 0600); err != nil {
		return paths, fmt.Errorf("write summary: %w", err)
	}
	paths = append(paths, path)

	log.Info().Str("dir", dir).Int("files", len(paths)).Msg("Exported results")
	return paths, nil
}
