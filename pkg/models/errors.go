package models

import "errors"

// Error taxonomy. Every error is fatal for a run; callers wrap these with
// context and test with errors.Is.
var (
	// ErrInputMissing means no usable input table was found.
	ErrInputMissing = errors.New("input missing")
	// ErrInputShape means the table does not have the expected columns or rows are malformed.
	ErrInputShape = errors.New("input shape")
	// ErrConfiguration means run options are contradictory or invalid.
	ErrConfiguration = errors.New("configuration")
	// ErrDegenerateInput means there are fewer than two procedures to cluster.
	ErrDegenerateInput = errors.New("degenerate input")
	// ErrInvalidMatrix means a distance matrix is not square, symmetric, zero-diagonal and within [0,1].
	ErrInvalidMatrix = errors.New("invalid distance matrix")
)
