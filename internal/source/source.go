// Package source contains the evidence sources the enrichment pipeline
// draws from. Each source proposes candidate field updates at its own trust
// level; only the merge engine commits them.
package source

import (
	"context"

	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
)

// Outcome classifies a fetch that did not fail outright.
type Outcome string

const (
	// OutcomeFound means the upstream had evidence for this museum.
	OutcomeFound Outcome = "found"
	// OutcomeNotFound means the upstream was reachable but had nothing for
	// this museum. Not an error: the phase run still counts as success.
	OutcomeNotFound Outcome = "not_found"
)

// Result is the output of one source fetch for one museum.
type Result struct {
	Outcome    Outcome
	Candidates []model.CandidateUpdate

	// NameCorrection carries an identity fix for the museum's display name,
	// outside the envelope system. Only high-trust sources set it.
	NameCorrection string

	// Payload is the raw evidence to cache for this (museum, phase).
	Payload []byte

	// Signature is the upstream watermark recorded alongside the payload;
	// "" when the source cannot cheaply characterize its upstream.
	Signature string
}

// Source is one enrichment phase's evidence provider.
type Source interface {
	// Phase returns the phase name this source backs.
	Phase() string

	// UpstreamSignature returns a cheap change signature for the museum's
	// upstream state without performing the full fetch, or "" when change
	// detection requires fetching.
	UpstreamSignature(ctx context.Context, m model.Museum) (string, error)

	// Fetch retrieves evidence for one museum.
	Fetch(ctx context.Context, m model.Museum) (*Result, error)
}
