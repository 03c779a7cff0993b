package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeSkips(t *testing.T) {
	on, off := true, false
	toggles := map[string]*bool{
		"geocode":      &on,
		"wikidata":     &off,
		"llm_judgment": &on,
	}

	got := mergeSkips([]string{"region", "geocode"}, toggles)
	assert.Equal(t, []string{"region", "geocode", "llm_judgment"}, got)
}

func TestMergeSkips_NoToggles(t *testing.T) {
	assert.Empty(t, mergeSkips(nil, nil))
	assert.Equal(t, []string{"overrides"}, mergeSkips([]string{"overrides"}, nil))
}

func TestSkipToggleFlagsRegistered(t *testing.T) {
	for _, flag := range []string{"skip-geocode", "skip-region", "skip-wikidata", "skip-llm-judgment", "skip-overrides"} {
		assert.NotNil(t, enrichCmd.Flags().Lookup(flag), flag)
	}
	assert.Nil(t, enrichCmd.Flags().Lookup("skip-registry"))
}
