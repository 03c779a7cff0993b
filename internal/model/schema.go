package model

import (
	"strconv"
	"strings"
)

// FieldType enumerates the declared value types of the closed field schema.
type FieldType string

const (
	TypeString     FieldType = "string"
	TypeInt        FieldType = "int"
	TypeFloat      FieldType = "float"
	TypeBool       FieldType = "bool"
	TypeStringList FieldType = "string_list"
)

// FieldDef declares one field of the closed museum schema.
type FieldDef struct {
	Key  string    `json:"key"`
	Type FieldType `json:"type"`
	// NullableCollapsing marks collection fields whose empty value means
	// "no information" rather than "known to be empty".
	NullableCollapsing bool `json:"nullable_collapsing,omitempty"`
	// ScoringInput marks fields the score calculator reads.
	ScoringInput bool `json:"scoring_input,omitempty"`
	// Derived fields are written only by the score phase.
	Derived bool `json:"derived,omitempty"`
}

// Schema is the closed, versioned field schema. Candidate updates naming a
// field outside the schema are rejected, never silently merged.
type Schema struct {
	Version string
	defs    map[string]FieldDef
}

// SchemaVersion identifies the current field schema revision.
const SchemaVersion = "2026-08"

// NewSchema builds an indexed schema from field definitions.
func NewSchema(version string, defs []FieldDef) *Schema {
	s := &Schema{Version: version, defs: make(map[string]FieldDef, len(defs))}
	for _, d := range defs {
		s.defs[d.Key] = d
	}
	return s
}

// DefaultSchema returns the museum field schema.
func DefaultSchema() *Schema {
	return NewSchema(SchemaVersion, []FieldDef{
		{Key: "address", Type: TypeString},
		{Key: "city", Type: TypeString},
		{Key: "state", Type: TypeString},
		{Key: "postal_code", Type: TypeString},
		{Key: "region", Type: TypeString},
		{Key: "latitude", Type: TypeFloat},
		{Key: "longitude", Type: TypeFloat},
		{Key: "phone", Type: TypeString},
		{Key: "website", Type: TypeString},
		{Key: "founded_year", Type: TypeInt},
		{Key: "annual_visitors", Type: TypeInt},
		{Key: "admission_free", Type: TypeBool},
		{Key: "museum_type", Type: TypeString},
		{Key: "collections", Type: TypeStringList, NullableCollapsing: true},
		{Key: "description", Type: TypeString},

		// Scoring inputs, 1-5 scales except reputation_tier (0-3).
		{Key: "art_strength", Type: TypeInt, ScoringInput: true},
		{Key: "history_strength", Type: TypeInt, ScoringInput: true},
		{Key: "historical_context", Type: TypeInt, ScoringInput: true},
		{Key: "collection_strength", Type: TypeInt, ScoringInput: true},
		{Key: "curatorial_authority", Type: TypeInt, ScoringInput: true},
		{Key: "reputation_tier", Type: TypeInt, ScoringInput: true},

		// Derived.
		{Key: "rank_score", Type: TypeFloat, Derived: true},
		{Key: "scoring_version", Type: TypeString, Derived: true},
	})
}

// Lookup returns the definition for a field key.
func (s *Schema) Lookup(key string) (FieldDef, bool) {
	d, ok := s.defs[key]
	return d, ok
}

// ScoringInputs returns the keys of all scoring-input fields.
func (s *Schema) ScoringInputs() []string {
	var keys []string
	for k, d := range s.defs {
		if d.ScoringInput {
			keys = append(keys, k)
		}
	}
	return keys
}

// Coerce validates a concrete (non-nil) value against the declared type and
// returns the normalized form. The bool result is false on a type mismatch.
// Numbers arriving from JSON decode as float64; ints are accepted when the
// fraction is zero.
func (s *Schema) Coerce(key string, v any) (any, bool) {
	def, ok := s.defs[key]
	if !ok {
		return nil, false
	}

	switch def.Type {
	case TypeString:
		if str, ok := v.(string); ok {
			return strings.TrimSpace(str), true
		}
		return nil, false

	case TypeInt:
		switch n := v.(type) {
		case int:
			return n, true
		case int64:
			return int(n), true
		case float64:
			if n == float64(int(n)) {
				return int(n), true
			}
			return nil, false
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(strings.ReplaceAll(n, ",", "")))
			if err != nil {
				return nil, false
			}
			return i, true
		}
		return nil, false

	case TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return nil, false
			}
			return f, true
		}
		return nil, false

	case TypeBool:
		switch b := v.(type) {
		case bool:
			return b, true
		case string:
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "true", "yes", "1":
				return true, true
			case "false", "no", "0":
				return false, true
			}
			return nil, false
		}
		return nil, false

	case TypeStringList:
		switch list := v.(type) {
		case []string:
			return list, true
		case []any:
			out := make([]string, 0, len(list))
			for _, item := range list {
				str, ok := item.(string)
				if !ok {
					return nil, false
				}
				out = append(out, str)
			}
			return out, true
		}
		return nil, false
	}

	return nil, false
}

// CollapsesEmpty reports whether an empty collection value for this field is
// treated as a placeholder.
func (s *Schema) CollapsesEmpty(key string) bool {
	d, ok := s.defs[key]
	return ok && d.NullableCollapsing
}
