// Package trust defines the total order over evidence origins used to
// arbitrate conflicting field updates, plus placeholder detection.
package trust

import (
	"github.com/rotisserie/eris"
)

// Level ranks the reliability of an evidence origin. Higher is more trusted.
type Level int

const (
	// Unknown is the floor: a field with no recorded provenance.
	Unknown Level = iota
	// LLMInference is a language-model judgment with no citable source.
	LLMInference
	// TextExtract is a value pulled out of unstructured page text.
	TextExtract
	// Encyclopedia is a general-reference summary (e.g. an encyclopedia intro).
	Encyclopedia
	// KnowledgeBase is a curated structured knowledge base entry.
	KnowledgeBase
	// StructuredSite is structured markup or an official registry record.
	StructuredSite
	// Manual is a human curator override. Nothing outranks it.
	Manual
)

var levelNames = map[Level]string{
	Unknown:        "unknown",
	LLMInference:   "llm_inference",
	TextExtract:    "text_extract",
	Encyclopedia:   "encyclopedia",
	KnowledgeBase:  "knowledge_base",
	StructuredSite: "structured_site",
	Manual:         "manual",
}

var levelsByName = func() map[string]Level {
	m := make(map[string]Level, len(levelNames))
	for l, n := range levelNames {
		m[n] = l
	}
	return m
}()

// String returns the wire name of the level.
func (l Level) String() string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unrecognized names
// collapse to Unknown rather than failing the whole record.
func (l *Level) UnmarshalText(b []byte) error {
	*l = levelsByName[string(b)]
	return nil
}

// ParseLevel converts a wire name to a Level, erroring on unknown names.
func ParseLevel(name string) (Level, error) {
	l, ok := levelsByName[name]
	if !ok {
		return Unknown, eris.Errorf("trust: unknown level %q", name)
	}
	return l, nil
}

// Compare returns -1 if a ranks below b, 0 if equal, 1 if above.
func Compare(a, b Level) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
