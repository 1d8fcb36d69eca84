// Package gorm provides GORM-based persistence for clustering runs.
package gorm

import (
	"net/http"
	"strconv"
)

// DefaultListLimit is the number of runs listed when no limit is given.
const DefaultListLimit = 50

// ParseLimitParam parses the "limit" query parameter from an HTTP request.
// Returns defaultLimit if the parameter is missing or invalid.
func ParseLimitParam(r *http.Request, defaultLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultLimit
}
