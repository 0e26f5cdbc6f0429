// Package search holds helpers shared by the web-search backends.
package search

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/menta2k/vision-amp/pkg/types"
)

// DefaultMaxResults is used when a backend is configured without a limit
const DefaultMaxResults = 5

// CleanText strips markup from a title or snippet and collapses whitespace.
// Input that cannot be parsed as HTML is returned with whitespace collapsed.
func CleanText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Normalize cleans every result and caps the list at max entries.
// Results without a title and a snippet are dropped.
func Normalize(results []types.SearchResult, max int) []types.SearchResult {
	if max <= 0 {
		max = DefaultMaxResults
	}
	out := make([]types.SearchResult, 0, len(results))
	for _, r := range results {
		r.Title = CleanText(r.Title)
		r.Snippet = CleanText(r.Snippet)
		if r.Title == "" && r.Snippet == "" {
			continue
		}
		out = append(out, r)
		if len(out) == max {
			break
		}
	}
	return out
}

// Query returns the web-search query used for a location.
func Query(location string) string {
	return "current weather alerts in " + location
}
