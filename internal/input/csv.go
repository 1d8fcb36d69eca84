// Package input loads procedure tables from CSV files.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/procluster/pkg/models"
)

// Columns are the positional names given to the three input columns,
// whatever the header row says.
var Columns = [3]string{"Procedure", "Attributes", "Invocations"}

// Discover returns the first *.csv file in dir, in lexical order.
func Discover(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInputMissing, err)
	}
	files := matches[:0]
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w: no *.csv file in %s", models.ErrInputMissing, dir)
	}
	sort.Strings(files)
	if len(files) > 1 {
		log.Debug().Str("dir", dir).Int("candidates", len(files)).Str("chosen", files[0]).Msg("Multiple CSV files found")
	}
	return files[0], nil
}

// Load opens path and parses it with ReadCSV.
func Load(path string) ([]models.ProcedureRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrInputMissing, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debug().Str("path", path).Int("procedures", len(records)).Msg("Loaded input")
	return records, nil
}

// ReadCSV parses a header row followed by procedure rows.
// Empty and missing trailing cells become null fields.
func ReadCSV(r io.Reader) ([]models.ProcedureRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", models.ErrInputMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInputShape, err)
	}
	if len(header) != len(Columns) {
		return nil, fmt.Errorf("%w: header has %d columns, want %d", models.ErrInputShape, len(header), len(Columns))
	}

	var records []models.ProcedureRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInputShape, err)
		}
		if isBlank(row) {
			continue
		}
		line, _ := cr.FieldPos(0)
		if len(row) > len(Columns) {
			return nil, fmt.Errorf("%w: line %d has %d cells", models.ErrInputShape, line, len(row))
		}

		cells := make([]string, len(Columns))
		copy(cells, row)
		name := strings.TrimSpace(cells[0])
		if name == "" {
			return nil, fmt.Errorf("%w: line %d has no procedure name", models.ErrInputShape, line)
		}
		records = append(records, models.NewProcedureRecord(name, cells[1], cells[2]))
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no procedure rows", models.ErrInputMissing)
	}
	return records, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
