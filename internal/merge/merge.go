// Package merge implements the provenance-aware field merge engine. The
// engine decides, per field, whether a batch of candidate updates may replace
// the current canonical value, enforcing the non-regression invariant and the
// trust-order precedence. It performs no I/O.
package merge

import (
	"fmt"
	"sort"

	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
)

// Engine arbitrates candidate updates against canonical records.
type Engine struct {
	schema *model.Schema
	policy *trust.Policy
}

// NewEngine creates a merge engine bound to a field schema and trust policy.
func NewEngine(schema *model.Schema, policy *trust.Policy) *Engine {
	return &Engine{schema: schema, policy: policy}
}

// Merge resolves a batch of candidate updates against the pre-batch snapshot
// of the museum and returns the new record plus the rejection log. Candidates
// within one batch are resolved per field independently against the snapshot,
// so the outcome does not depend on candidate order.
func (e *Engine) Merge(current model.Museum, candidates []model.CandidateUpdate) (model.Museum, []model.Rejection) {
	next := current.Clone()
	var rejections []model.Rejection

	reject := func(c model.CandidateUpdate, reason model.RejectionReason) {
		rejections = append(rejections, model.Rejection{
			MuseumKey:     current.Key,
			Field:         c.Field,
			ProposedValue: c.Value,
			Origin:        c.Origin,
			Reason:        reason,
		})
	}

	// Group candidates by field; validate against the closed schema up front.
	byField := make(map[string][]normalized)
	for _, c := range candidates {
		if c.Field == "name" {
			// Identity correction, handled below against the record itself.
			byField[c.Field] = append(byField[c.Field], normalized{raw: c, value: c.Value, absent: e.isAbsent("name", c.Value)})
			continue
		}

		if _, ok := e.schema.Lookup(c.Field); !ok {
			reject(c, model.ReasonUnknownField)
			continue
		}

		n := normalized{raw: c}
		if e.isAbsent(c.Field, c.Value) {
			n.absent = true
		} else {
			coerced, ok := e.schema.Coerce(c.Field, c.Value)
			if !ok {
				reject(c, model.ReasonTypeMismatch)
				continue
			}
			n.value = coerced
		}
		byField[c.Field] = append(byField[c.Field], n)
	}

	fields := make([]string, 0, len(byField))
	for f := range byField {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		batch := byField[field]
		winnerIdx := pickWinner(batch)
		winner := batch[winnerIdx]

		if field == "name" {
			e.mergeName(&next, winnerIdx, batch, reject)
			continue
		}

		existing, hasExisting := current.Field(field)
		existingAbsent := !hasExisting || e.isAbsent(field, existing.Value)
		existingTrust := trust.Unknown
		if hasExisting {
			existingTrust = existing.Trust
		}

		applied := false
		switch {
		case winner.absent:
			// Null/placeholder candidate: only allowed to clear another
			// null/placeholder, never real knowledge.
			if existingAbsent {
				env := winner.raw.Envelope()
				env.Value = nil
				next.SetField(field, env)
				applied = true
			} else {
				reject(winner.raw, model.ReasonCannotReplaceKnownWithNull)
			}

		case existingAbsent,
			trust.Compare(winner.raw.Trust, existingTrust) > 0,
			trust.Compare(winner.raw.Trust, existingTrust) == 0 && winner.raw.RetrievedAt.After(existing.RetrievedAt):
			env := winner.raw.Envelope()
			env.Value = winner.value
			next.SetField(field, env)
			applied = true

		default:
			reject(winner.raw, model.ReasonInsufficientTrust)
		}

		// Losing candidates are arbitrated against the effective value so
		// their rejection reasons match what a solo merge would have produced.
		effectiveAbsent := existingAbsent
		if applied {
			env, _ := next.Field(field)
			effectiveAbsent = e.isAbsent(field, env.Value)
		}
		for i, n := range batch {
			if i == winnerIdx {
				continue
			}
			switch {
			case n.absent && !effectiveAbsent:
				reject(n.raw, model.ReasonCannotReplaceKnownWithNull)
			case n.absent:
				// Redundant normalization; the winner already cleared it.
			default:
				reject(n.raw, model.ReasonInsufficientTrust)
			}
		}
	}

	sort.Slice(rejections, func(i, j int) bool {
		a, b := rejections[i], rejections[j]
		if a.Field != b.Field {
			return a.Field < b.Field
		}
		if a.Origin != b.Origin {
			return a.Origin < b.Origin
		}
		return a.Reason < b.Reason
	})

	return next, rejections
}

// mergeName applies an identity-field correction. Names carry no envelope,
// but corrections still respect trust precedence: only structured or manual
// origins may rewrite a name, and a name is never blanked.
func (e *Engine) mergeName(next *model.Museum, winnerIdx int, batch []normalized, reject func(model.CandidateUpdate, model.RejectionReason)) {
	winner := batch[winnerIdx]
	for i, n := range batch {
		if i == winnerIdx {
			continue
		}
		if n.absent {
			reject(n.raw, model.ReasonCannotReplaceKnownWithNull)
		} else {
			reject(n.raw, model.ReasonInsufficientTrust)
		}
	}

	if winner.absent {
		reject(winner.raw, model.ReasonCannotReplaceKnownWithNull)
		return
	}
	s, ok := winner.value.(string)
	if !ok {
		s, ok = winner.raw.Value.(string)
	}
	if !ok {
		reject(winner.raw, model.ReasonTypeMismatch)
		return
	}
	if next.Name != "" && trust.Compare(winner.raw.Trust, trust.StructuredSite) < 0 {
		reject(winner.raw, model.ReasonInsufficientTrust)
		return
	}
	next.Name = s
}

// isAbsent reports whether a value counts as absence of knowledge for the
// given field: nil, a placeholder string, or an empty collection on a
// nullable-collapsing field.
func (e *Engine) isAbsent(field string, v any) bool {
	if e.policy.IsPlaceholder(v) {
		return true
	}
	if !e.schema.CollapsesEmpty(field) {
		return false
	}
	switch list := v.(type) {
	case []string:
		return len(list) == 0
	case []any:
		return len(list) == 0
	}
	return false
}

// normalized is a candidate after schema validation.
type normalized struct {
	raw    model.CandidateUpdate
	value  any
	absent bool
}

// pickWinner selects the batch winner for one field deterministically:
// concrete beats absent, then higher trust, then newer retrieval, then a
// stable textual tie-break so shuffled batches resolve identically.
func pickWinner(batch []normalized) int {
	best := 0
	for i := 1; i < len(batch); i++ {
		if beats(batch[i], batch[best]) {
			best = i
		}
	}
	return best
}

func beats(a, b normalized) bool {
	if a.absent != b.absent {
		return !a.absent
	}
	if c := trust.Compare(a.raw.Trust, b.raw.Trust); c != 0 {
		return c > 0
	}
	if !a.raw.RetrievedAt.Equal(b.raw.RetrievedAt) {
		return a.raw.RetrievedAt.After(b.raw.RetrievedAt)
	}
	if a.raw.Origin != b.raw.Origin {
		return a.raw.Origin < b.raw.Origin
	}
	return fmt.Sprintf("%v", a.raw.Value) < fmt.Sprintf("%v", b.raw.Value)
}
