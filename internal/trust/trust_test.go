package trust

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare_TotalOrder(t *testing.T) {
	ordered := []Level{Unknown, LLMInference, TextExtract, Encyclopedia, KnowledgeBase, StructuredSite, Manual}
	for i := range ordered {
		for j := range ordered {
			got := Compare(ordered[i], ordered[j])
			switch {
			case i < j:
				assert.Equal(t, -1, got, "%s vs %s", ordered[i], ordered[j])
			case i > j:
				assert.Equal(t, 1, got, "%s vs %s", ordered[i], ordered[j])
			default:
				assert.Equal(t, 0, got)
			}
		}
	}
}

func TestParseLevel_RoundTrip(t *testing.T) {
	for _, l := range []Level{Unknown, LLMInference, TextExtract, Encyclopedia, KnowledgeBase, StructuredSite, Manual} {
		got, err := ParseLevel(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, got)
	}
}

func TestParseLevel_Unknown(t *testing.T) {
	_, err := ParseLevel("psychic")
	assert.Error(t, err)
}

func TestUnmarshalText_CollapsesUnknown(t *testing.T) {
	var l Level
	require.NoError(t, l.UnmarshalText([]byte("not-a-level")))
	assert.Equal(t, Unknown, l)
}

func TestIsPlaceholder_Sentinels(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, true},
		{"empty", "", true},
		{"whitespace", "   \t", true},
		{"tbd lower", "tbd", true},
		{"tbd upper", "TBD", true},
		{"tbd padded", "  TbD ", true},
		{"n/a", "N/A", true},
		{"double dash", "--", true},
		{"none", "None", true},
		{"real string", "Denver Art Museum", false},
		{"zero int", 0, false},
		{"zero float", 0.0, false},
		{"false", false, false},
		{"nil string ptr", (*string)(nil), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.IsPlaceholder(tc.in))
		})
	}
}

func TestIsPlaceholder_StringPointer(t *testing.T) {
	p := DefaultPolicy()
	s := "pending"
	assert.True(t, p.IsPlaceholder(&s))
	s = "1905"
	assert.False(t, p.IsPlaceholder(&s))
}

func TestLoadPolicy_OverridesVocabulary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trust.yaml")
	require.NoError(t, os.WriteFile(path, []byte("placeholders:\n  - desconocido\n  - '???'\n"), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.True(t, p.IsPlaceholder("Desconocido"))
	assert.True(t, p.IsPlaceholder("???"))
	// Defaults are replaced, not merged.
	assert.False(t, p.IsPlaceholder("tbd"))
	// Empty strings always count as placeholders.
	assert.True(t, p.IsPlaceholder(""))
}

func TestLoadPolicy_EmptyListFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trust.yaml")
	require.NoError(t, os.WriteFile(path, []byte("placeholders: []\n"), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.True(t, p.IsPlaceholder("tbd"))
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
