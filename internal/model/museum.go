// Package model holds the canonical museum record, its provenance envelopes,
// and the run bookkeeping types shared across the pipeline.
package model

import (
	"time"

	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
)

// Museum is the canonical merged record for one museum. Key, Name and
// Partition are identity fields and carry no provenance envelope; everything
// else lives in Fields.
type Museum struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Partition string `json:"partition"`

	Fields map[string]FieldEnvelope `json:"fields"`

	UpdatedAt time.Time `json:"updated_at"`
}

// FieldEnvelope bundles a field value with its provenance.
type FieldEnvelope struct {
	Value       any         `json:"value"`
	Origin      string      `json:"origin"`
	Trust       trust.Level `json:"trust"`
	Confidence  int         `json:"confidence"` // 1-5
	RetrievedAt time.Time   `json:"retrieved_at"`
}

// Clone returns a deep copy of the museum. Field values are assumed to be
// JSON scalars or []string; string slices are copied, everything else is
// copied by value.
func (m Museum) Clone() Museum {
	out := m
	out.Fields = make(map[string]FieldEnvelope, len(m.Fields))
	for k, env := range m.Fields {
		if ss, ok := env.Value.([]string); ok {
			cp := make([]string, len(ss))
			copy(cp, ss)
			env.Value = cp
		}
		out.Fields[k] = env
	}
	return out
}

// Field returns the envelope for a field, if present.
func (m Museum) Field(key string) (FieldEnvelope, bool) {
	env, ok := m.Fields[key]
	return env, ok
}

// FloatField returns a field value as float64, or nil when the field is
// absent, null, or not numeric. Ints stored via JSON round-trips arrive as
// float64 already.
func (m Museum) FloatField(key string) *float64 {
	env, ok := m.Fields[key]
	if !ok || env.Value == nil {
		return nil
	}
	switch v := env.Value.(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	default:
		return nil
	}
}

// IntField returns a field value as int, or nil when absent or non-numeric.
func (m Museum) IntField(key string) *int {
	f := m.FloatField(key)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

// StringField returns a field value as string, or "" when absent or not a
// string.
func (m Museum) StringField(key string) string {
	env, ok := m.Fields[key]
	if !ok {
		return ""
	}
	s, _ := env.Value.(string)
	return s
}

// SetField writes an envelope, allocating the map on first use.
func (m *Museum) SetField(key string, env FieldEnvelope) {
	if m.Fields == nil {
		m.Fields = make(map[string]FieldEnvelope)
	}
	m.Fields[key] = env
}

// CandidateUpdate is a proposed field envelope emitted by an evidence
// source, not yet committed by the merge engine.
type CandidateUpdate struct {
	Field       string      `json:"field"`
	Value       any         `json:"value"`
	Origin      string      `json:"origin"`
	Trust       trust.Level `json:"trust"`
	Confidence  int         `json:"confidence"`
	RetrievedAt time.Time   `json:"retrieved_at"`
}

// Envelope converts the candidate into the committed envelope form.
func (c CandidateUpdate) Envelope() FieldEnvelope {
	return FieldEnvelope{
		Value:       c.Value,
		Origin:      c.Origin,
		Trust:       c.Trust,
		Confidence:  c.Confidence,
		RetrievedAt: c.RetrievedAt,
	}
}

// RejectionReason is the fixed taxonomy for unapplied candidate updates.
type RejectionReason string

const (
	ReasonCannotReplaceKnownWithNull RejectionReason = "cannot_replace_known_with_null"
	ReasonInsufficientTrust          RejectionReason = "insufficient_trust"
	ReasonTypeMismatch               RejectionReason = "type_mismatch"
	ReasonUnknownField               RejectionReason = "unknown_field"
)

// Rejection records a candidate update the merge engine refused to apply.
type Rejection struct {
	MuseumKey     string          `json:"museum_key"`
	Field         string          `json:"field"`
	ProposedValue any             `json:"proposed_value"`
	Origin        string          `json:"origin,omitempty"`
	Reason        RejectionReason `json:"reason"`
}
