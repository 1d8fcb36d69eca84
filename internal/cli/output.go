package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/thebtf/procluster/pkg/models"
)

// Exit codes for CLI commands.
const (
	ExitSuccess    = 0
	ExitFailure    = 1 // storage, rendering and other runtime failures
	ExitInput      = 2 // input table missing or malformed
	ExitConfig     = 3 // invalid selectors, linkage or settings
	ExitDegenerate = 4 // fewer than two procedures
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Errors that are not an ExitError are classified by their sentinel.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return codeFor(err)
}

func codeFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInputMissing), errors.Is(err, models.ErrInputShape):
		return ExitInput
	case errors.Is(err, models.ErrConfiguration):
		return ExitConfig
	case errors.Is(err, models.ErrDegenerateInput):
		return ExitDegenerate
	default:
		return ExitFailure
	}
}

// classify wraps err in an ExitError whose code follows the error taxonomy.
func classify(message string, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return WrapExitError(codeFor(err), message, err)
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the JSON envelope for command output.
type CLIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// JSON reports whether output is machine readable.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Success writes data. In text mode text is called to print it instead.
func (f *OutputFormatter) Success(data interface{}, text func(w io.Writer) error) error {
	if f.JSON() {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	}
	return text(f.Writer)
}

// Error writes err as a JSON envelope. It is a no-op in text mode, where
// main prints errors to stderr.
func (f *OutputFormatter) Error(err error) error {
	if !f.JSON() {
		return nil
	}
	return json.NewEncoder(f.Writer).Encode(CLIResponse{
		Status: "error",
		Error:  &CLIError{Message: err.Error(), Code: GetExitCode(err)},
	})
}
