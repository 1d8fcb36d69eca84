package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/procluster/pkg/models"
)

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitSuccess},
		{name: "plain error", err: errors.New("boom"), want: ExitFailure},
		{name: "input missing", err: fmt.Errorf("load: %w", models.ErrInputMissing), want: ExitInput},
		{name: "input shape", err: models.ErrInputShape, want: ExitInput},
		{name: "configuration", err: fmt.Errorf("%w: both selectors", models.ErrConfiguration), want: ExitConfig},
		{name: "degenerate", err: models.ErrDegenerateInput, want: ExitDegenerate},
		{name: "explicit exit error", err: WrapExitError(ExitConfig, "bad flag", errors.New("x")), want: ExitConfig},
		{name: "wrapped exit error", err: fmt.Errorf("outer: %w", WrapExitError(ExitInput, "m", nil)), want: ExitInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("noop", nil))

	err := classify("load input", fmt.Errorf("%w: no rows", models.ErrInputMissing))
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitInput, exitErr.Code)
	assert.Equal(t, "load input: input missing: no rows", err.Error())
	assert.ErrorIs(t, err, models.ErrInputMissing)

	// an existing ExitError keeps its code
	orig := WrapExitError(ExitFailure, "open database", models.ErrConfiguration)
	assert.Same(t, orig, classify("other", orig))
}

func TestExitErrorMessage(t *testing.T) {
	assert.Equal(t, "bad", (&ExitError{Code: 1, Message: "bad"}).Error())
	assert.Equal(t, "bad: cause", WrapExitError(1, "bad", errors.New("cause")).Error())
}

func TestOutputFormatter(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		f := &OutputFormatter{Format: "text", Writer: &buf}
		require.NoError(t, f.Success(42, func(w io.Writer) error {
			_, err := io.WriteString(w, "forty-two\n")
			return err
		}))
		require.NoError(t, f.Error(errors.New("ignored")))
		assert.Equal(t, "forty-two\n", buf.String())
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		f := &OutputFormatter{Format: "json", Writer: &buf}
		require.NoError(t, f.Success(map[string]int{"n": 42}, nil))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, map[string]interface{}{"n": float64(42)}, resp.Data)

		buf.Reset()
		require.NoError(t, f.Error(models.ErrDegenerateInput))
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		assert.Equal(t, ExitDegenerate, resp.Error.Code)
	})
}
