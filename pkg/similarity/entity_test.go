package similarity

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/procluster/pkg/models"
)

func TestSplitField(t *testing.T) {
	tests := []struct {
		name      string
		field     sql.NullString
		delimiter string
		expected  []string
	}{
		{
			name:      "null field yields one empty token",
			field:     sql.NullString{},
			delimiter: ";",
			expected:  []string{""},
		},
		{
			name:      "single token",
			field:     sql.NullString{String: "count", Valid: true},
			delimiter: ";",
			expected:  []string{"count"},
		},
		{
			name:      "tokens are trimmed",
			field:     sql.NullString{String: " count ; total;name ", Valid: true},
			delimiter: ";",
			expected:  []string{"count", "total", "name"},
		},
		{
			name:      "trailing delimiter keeps empty token",
			field:     sql.NullString{String: "a;", Valid: true},
			delimiter: ";",
			expected:  []string{"a", ""},
		},
		{
			name:      "empty delimiter falls back to default",
			field:     sql.NullString{String: "a;b", Valid: true},
			delimiter: "",
			expected:  []string{"a", "b"},
		},
		{
			name:      "custom delimiter",
			field:     sql.NullString{String: "a|b", Valid: true},
			delimiter: "|",
			expected:  []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitField(tt.field, tt.delimiter))
		})
	}
}

func TestBuildEntitySet(t *testing.T) {
	rec := models.NewProcedureRecord("calcTotal", "total;items", "sum;items")
	set := BuildEntitySet(rec, ";")

	assert.Equal(t, "calcTotal", set.Procedure)
	assert.Equal(t, []string{"calcTotal", "items", "sum", "total"}, set.Sorted())
	assert.True(t, set.Contains("calcTotal"))
	assert.False(t, set.Contains(""))
}

func TestBuildEntitySet_EmptyFields(t *testing.T) {
	rec := models.NewProcedureRecord("lonely", "", "")
	set := BuildEntitySet(rec, ";")

	// {name, ""}: both null fields collapse onto the same empty token.
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains("lonely"))
	assert.True(t, set.Contains(""))
}

func TestBuildEntitySets(t *testing.T) {
	records := []models.ProcedureRecord{
		models.NewProcedureRecord("b", "x", ""),
		models.NewProcedureRecord("a", "y", ""),
	}

	sets, err := BuildEntitySets(records, ";")
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, "b", sets[0].Procedure, "row order must be preserved")
	assert.Equal(t, "a", sets[1].Procedure)
}

func TestBuildEntitySets_ShapeErrors(t *testing.T) {
	tests := []struct {
		name    string
		records []models.ProcedureRecord
	}{
		{
			name:    "empty name",
			records: []models.ProcedureRecord{models.NewProcedureRecord("  ", "a", "b")},
		},
		{
			name: "duplicate name",
			records: []models.ProcedureRecord{
				models.NewProcedureRecord("p", "a", ""),
				models.NewProcedureRecord("p", "b", ""),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildEntitySets(tt.records, ";")
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrInputShape))
		})
	}
}
