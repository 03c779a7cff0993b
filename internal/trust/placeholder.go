package trust

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// defaultSentinels are strings that syntactically look like data but
// semantically mean "no information". Matched case-insensitively after
// trimming whitespace.
var defaultSentinels = []string{
	"tbd", "tba", "unknown", "n/a", "na", "none", "null", "pending", "--", "-",
}

// Policy holds the configurable parts of trust arbitration: the placeholder
// vocabulary. The level ordering itself is fixed at compile time; the
// sentinel list varies by dataset and is loaded from config.
type Policy struct {
	sentinels map[string]struct{}
	fold      cases.Caser
}

// policyFile is the on-disk YAML shape of a trust policy.
type policyFile struct {
	Placeholders []string `yaml:"placeholders"`
}

// DefaultPolicy returns a Policy with the compiled-in sentinel vocabulary.
func DefaultPolicy() *Policy {
	return newPolicy(defaultSentinels)
}

// LoadPolicy reads a YAML policy file. An empty placeholder list falls back
// to the defaults.
func LoadPolicy(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "trust: read policy %s", path)
	}
	var pf policyFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, eris.Wrapf(err, "trust: parse policy %s", path)
	}
	if len(pf.Placeholders) == 0 {
		return DefaultPolicy(), nil
	}
	return newPolicy(pf.Placeholders), nil
}

func newPolicy(sentinels []string) *Policy {
	p := &Policy{
		sentinels: make(map[string]struct{}, len(sentinels)),
		fold:      cases.Fold(),
	}
	for _, s := range sentinels {
		p.sentinels[p.normalize(s)] = struct{}{}
	}
	return p
}

func (p *Policy) normalize(s string) string {
	return p.fold.String(strings.TrimSpace(s))
}

// IsPlaceholder reports whether a value signals absence of knowledge.
// Nil is a placeholder. Strings match the sentinel vocabulary or are
// empty/whitespace. Numeric zero and boolean false are concrete values.
// Collections are handled at the schema layer, not here.
func (p *Policy) IsPlaceholder(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		n := p.normalize(s)
		if n == "" {
			return true
		}
		_, ok := p.sentinels[n]
		return ok
	case *string:
		if s == nil {
			return true
		}
		return p.IsPlaceholder(*s)
	default:
		return false
	}
}
