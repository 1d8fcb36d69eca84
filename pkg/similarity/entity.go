// Package similarity builds procedure entity sets and the pairwise
// Jaccard-distance matrix over them.
package similarity

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/thebtf/procluster/pkg/models"
)

// EntitySet is the structural footprint of one procedure:
// its own name, its attributes and the methods it invokes.
type EntitySet struct {
	Terms     map[string]bool
	Procedure string
}

// Len returns the number of distinct terms.
func (e EntitySet) Len() int {
	return len(e.Terms)
}

// Contains reports whether term is part of the set.
func (e EntitySet) Contains(term string) bool {
	return e.Terms[term]
}

// Sorted returns the terms in lexical order.
func (e EntitySet) Sorted() []string {
	terms := make([]string, 0, len(e.Terms))
	for t := range e.Terms {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// SplitField splits a delimiter-joined cell into trimmed tokens.
//
// A null field yields a single empty-string token rather than no tokens.
// Two procedures that both lack a field therefore share the "" term, which
// raises their similarity slightly. Clustering results depend on this.
func SplitField(field sql.NullString, delimiter string) []string {
	if !field.Valid {
		return []string{""}
	}
	if delimiter == "" {
		delimiter = models.DefaultDelimiter
	}
	parts := strings.Split(field.String, delimiter)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// BuildEntitySet derives the entity set {name} ∪ attributes ∪ invocations.
// The result always contains the procedure name, so it is never empty.
func BuildEntitySet(rec models.ProcedureRecord, delimiter string) EntitySet {
	attrs := SplitField(rec.Attributes, delimiter)
	invs := SplitField(rec.Invocations, delimiter)

	terms := make(map[string]bool, 1+len(attrs)+len(invs))
	terms[rec.Name] = true
	for _, a := range attrs {
		terms[a] = true
	}
	for _, inv := range invs {
		terms[inv] = true
	}
	return EntitySet{Procedure: rec.Name, Terms: terms}
}

// BuildEntitySets builds one entity set per record, preserving row order.
// Empty or duplicate procedure names are shape errors.
func BuildEntitySets(records []models.ProcedureRecord, delimiter string) ([]EntitySet, error) {
	seen := make(map[string]int, len(records))
	sets := make([]EntitySet, len(records))
	for i, rec := range records {
		if rec.Name == "" {
			return nil, fmt.Errorf("%w: row %d has an empty procedure name", models.ErrInputShape, i+1)
		}
		if prev, dup := seen[rec.Name]; dup {
			return nil, fmt.Errorf("%w: procedure %q appears in rows %d and %d", models.ErrInputShape, rec.Name, prev+1, i+1)
		}
		seen[rec.Name] = i
		sets[i] = BuildEntitySet(rec, delimiter)
	}
	return sets, nil
}
