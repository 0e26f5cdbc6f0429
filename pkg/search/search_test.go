package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/menta2k/vision-amp/pkg/types"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"Flood Watch", "Flood Watch"},
		{"  Heavy   rain\nexpected ", "Heavy rain expected"},
		{"<b>Flood</b> Watch", "Flood Watch"},
		{"Wind &amp; rain", "Wind & rain"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, CleanText(tt.in), tt.in)
	}
}

func TestNormalize(t *testing.T) {
	results := []types.SearchResult{
		{Title: "<b>Flood Watch</b>", Snippet: "Heavy rain expected", Link: "https://a"},
		{Title: "", Snippet: " "},
		{Title: "Wind Advisory", Snippet: "Gusts", Link: "https://b"},
		{Title: "Third", Snippet: "c"},
	}

	got := Normalize(results, 2)
	assert.Equal(t, []types.SearchResult{
		{Title: "Flood Watch", Snippet: "Heavy rain expected", Link: "https://a"},
		{Title: "Wind Advisory", Snippet: "Gusts", Link: "https://b"},
	}, got)
}

func TestNormalizeDefaultLimit(t *testing.T) {
	results := make([]types.SearchResult, 10)
	for i := range results {
		results[i] = types.SearchResult{Title: "t"}
	}
	assert.Len(t, Normalize(results, 0), DefaultMaxResults)
}

func TestQuery(t *testing.T) {
	assert.Equal(t, "current weather alerts in Miami, FL", Query("Miami, FL"))
}
