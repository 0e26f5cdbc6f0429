package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/vision-amp/pkg/types"
)

// UnknownLocation is used for events whose location is missing
const UnknownLocation = "unknown location"

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseLocations reads a JSON array of {"location": ...} objects from model output.
// Anything that is not an array wraps types.ErrMalformedEnrichment.
func ParseLocations(raw string) ([]string, error) {
	cleaned := sanitizeModelJSON(raw)
	if !strings.HasPrefix(cleaned, "[") {
		return nil, fmt.Errorf("%w: no JSON array found", types.ErrMalformedEnrichment)
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedEnrichment, err)
	}

	locations := make([]string, 0, len(items))
	for _, item := range items {
		locations = append(locations, locationOf(item))
	}
	return locations, nil
}

func locationOf(item json.RawMessage) string {
	var event map[string]any
	if err := json.Unmarshal(item, &event); err != nil {
		return UnknownLocation
	}
	switch v := event["location"].(type) {
	case nil:
		return UnknownLocation
	case string:
		if strings.TrimSpace(v) == "" {
			return UnknownLocation
		}
		return strings.TrimSpace(v)
	default:
		return fmt.Sprint(v)
	}
}

// sanitizeModelJSON removes code fences, comments, and trailing commas, keeping the outermost array
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences wherever they appear
	if i := strings.Index(raw, "```"); i >= 0 {
		rest := raw[i+3:]
		if nl := strings.Index(rest, "\n"); nl >= 0 {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		raw = rest
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// An object before the first bracket means the model did not answer with an array
	if start := strings.Index(raw, "["); start >= 0 && !strings.Contains(raw[:start], "{") {
		if end := strings.LastIndex(raw, "]"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
