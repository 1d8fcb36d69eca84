// Package models contains domain models for procluster.
package models

import (
	"database/sql"
	"strings"
)

// DefaultDelimiter separates tokens inside the attributes and invocations cells.
const DefaultDelimiter = ";"

// ProcedureRecord is one row of the input table.
// Attributes and Invocations are delimiter-joined; an invalid (null) field
// means the cell was empty or missing.
type ProcedureRecord struct {
	Name        string         `db:"name" json:"name"`
	Attributes  sql.NullString `db:"attributes" json:"attributes"`
	Invocations sql.NullString `db:"invocations" json:"invocations"`
}

// NewProcedureRecord creates a record, treating empty strings as null fields.
func NewProcedureRecord(name, attributes, invocations string) ProcedureRecord {
	return ProcedureRecord{
		Name:        strings.TrimSpace(name),
		Attributes:  sql.NullString{String: attributes, Valid: attributes != ""},
		Invocations: sql.NullString{String: invocations, Valid: invocations != ""},
	}
}

// ProcedureRecordJSON is a JSON-friendly representation of ProcedureRecord.
// Nil pointers stand for null cells.
type ProcedureRecordJSON struct {
	Attributes  *string `json:"attributes"`
	Invocations *string `json:"invocations"`
	Name        string  `json:"name"`
}

// ToRecord converts the JSON form into a ProcedureRecord.
func (p ProcedureRecordJSON) ToRecord() ProcedureRecord {
	rec := ProcedureRecord{Name: strings.TrimSpace(p.Name)}
	if p.Attributes != nil {
		rec.Attributes = sql.NullString{String: *p.Attributes, Valid: true}
	}
	if p.Invocations != nil {
		rec.Invocations = sql.NullString{String: *p.Invocations, Valid: true}
	}
	return rec
}

// ToJSON converts a ProcedureRecord to its JSON-friendly form.
func (p ProcedureRecord) ToJSON() ProcedureRecordJSON {
	out := ProcedureRecordJSON{Name: p.Name}
	if p.Attributes.Valid {
		s := p.Attributes.String
		out.Attributes = &s
	}
	if p.Invocations.Valid {
		s := p.Invocations.String
		out.Invocations = &s
	}
	return out
}

// Names returns the procedure names in row order.
func Names(records []ProcedureRecord) []string {
	names := make([]string, len(records))
	for i, rec := range records {
		names[i] = rec.Name
	}
	return names
}
