package pipeline

import (
	"testing"

	"github.com/menta2k/vision-amp/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocations(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []string
	}{
		{"plain", `[{"location":"Miami, FL"}]`, []string{"Miami, FL"}},
		{"fenced", "```json\n[{\"location\":\"Miami, FL\"}]\n```", []string{"Miami, FL"}},
		{"prose around fence", "Here you go:\n```\n[{\"location\":\"A\"}]\n```\nHope it helps", []string{"A"}},
		{"trailing comma", `[{"location":"A"},{"location":"B"},]`, []string{"A", "B"}},
		{"line comment", "[\n// first\n{\"location\":\"A\"}\n]", []string{"A"}},
		{"missing location", `[{"event":"fire"}]`, []string{UnknownLocation}},
		{"blank location", `[{"location":"  "}]`, []string{UnknownLocation}},
		{"not an object", `["Miami"]`, []string{UnknownLocation}},
		{"empty", `[]`, []string{}},
		{"url in value", `[{"location":"https://example.com/x"}]`, []string{"https://example.com/x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocations(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseLocationsRejects(t *testing.T) {
	inputs := []string{
		"not json",
		`{"location":"Miami, FL"}`,
		`{"events":[{"location":"Miami"}]}`,
		"[unterminated",
		types.NoResponseText,
	}
	for _, raw := range inputs {
		_, err := ParseLocations(raw)
		assert.ErrorIs(t, err, types.ErrMalformedEnrichment, raw)
	}
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, CanTransition(Idle, StageARunning))
	assert.True(t, CanTransition(StageARunning, Failed))
	assert.True(t, CanTransition(StageBRunning, Failed))
	assert.False(t, CanTransition(EnrichmentFetching, Failed))
	assert.False(t, CanTransition(Complete, Idle))
	assert.Equal(t, "stage_b_running", StageBRunning.String())
}
