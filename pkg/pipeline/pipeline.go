// Package pipeline sends images and prompts to a vision model, optionally
// enriching the answer with web-search results in a second model call.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/menta2k/vision-amp/internal/log"
	"github.com/menta2k/vision-amp/pkg/client"
	"github.com/menta2k/vision-amp/pkg/search"
	"github.com/menta2k/vision-amp/pkg/types"
)

// DefaultPrompt asks the model for the structured event list the enrichment step consumes
const DefaultPrompt = `Identify every natural-disaster or severe-weather event visible on this map.

Return JSON only, as an array:
[
  {"location": "City, ST", "event": "short description", "severity": "low|moderate|high"}
]

- One object per affected location.
- If nothing is visible, return [].
- No markdown, no code fences, no comments.`

// ParseWarningText is shown when the first answer is not a JSON array
const ParseWarningText = "Could not parse JSON from LLM response."

const (
	refinePreamble = "Based on the map shown and the following weather-alert summaries, please refine your assessment of disaster severity and impacted areas:\n\n"
	mapSuffix      = "\n\nMap:"
	noAlerts       = "No alerts found"
)

// ErrSearchNotConfigured is returned by Enrich when no search backend is available
var ErrSearchNotConfigured = errors.New("search backend not configured")

// StateObserver receives every state transition of an enrichment run
type StateObserver func(from, to State)

// Pipeline runs vision queries against one vision backend and one optional search backend
type Pipeline struct {
	vision   client.VisionClient
	search   client.SearchClient
	observer StateObserver
	onDelta  func(string)
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithStateObserver registers fn for enrichment state transitions
func WithStateObserver(fn StateObserver) Option {
	return func(p *Pipeline) {
		p.observer = fn
	}
}

// WithDeltaHandler receives streamed chunks of every model call
func WithDeltaHandler(fn func(string)) Option {
	return func(p *Pipeline) {
		p.onDelta = fn
	}
}

// New creates a pipeline. search may be nil, in which case Enrich is unavailable.
func New(vision client.VisionClient, search client.SearchClient, opts ...Option) *Pipeline {
	p := &Pipeline{vision: vision, search: search}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnrichmentResult is everything a two-stage run produced
type EnrichmentResult struct {
	StageA       types.VisionResponse    `json:"stageA"`
	Events       []types.EnrichmentEvent `json:"events"`
	ParseWarning bool                    `json:"parseWarning"`
	ParseErr     error                   `json:"-"`
	Warnings     []string                `json:"warnings,omitempty"`
	StageBPrompt string                  `json:"stageBPrompt"`
	StageB       types.VisionResponse    `json:"stageB"`
	States       []State                 `json:"states"`
}

// Ask sends a single prompt with the image
func (p *Pipeline) Ask(ctx context.Context, image *types.StoredImage, prompt string, params types.ModelParams) (types.VisionResponse, error) {
	if image == nil {
		return types.VisionResponse{}, fmt.Errorf("no image attached to request")
	}
	log.Debugf("asking about %s (%d bytes)", image.Name, image.Size)
	return p.vision.Ask(ctx, types.VisionRequest{
		Prompt:  prompt,
		Image:   image,
		Params:  params,
		OnDelta: p.onDelta,
	})
}

// Enrich runs stage A, looks up weather alerts for every event location, and
// asks the model again with the alert summaries. The returned result carries
// the state trace even when an error is returned.
func (p *Pipeline) Enrich(ctx context.Context, image *types.StoredImage, prompt string, params types.ModelParams) (*EnrichmentResult, error) {
	if p.search == nil {
		return nil, ErrSearchNotConfigured
	}

	result := &EnrichmentResult{States: []State{Idle}}
	p.transition(result, StageARunning)

	stageA, err := p.Ask(ctx, image, prompt, params)
	if err != nil {
		p.transition(result, Failed)
		return result, fmt.Errorf("stage A: %w", err)
	}
	result.StageA = stageA
	p.transition(result, StageAComplete)

	locations, err := ParseLocations(stageA.Text)
	if err != nil {
		log.Warnf("%s (%v)", ParseWarningText, err)
		result.ParseWarning = true
		result.ParseErr = err
		result.Warnings = append(result.Warnings, ParseWarningText)
	}

	p.transition(result, EnrichmentFetching)
	summaries := make([]string, 0, len(locations))
	for _, loc := range locations {
		event := p.lookup(ctx, loc)
		if event.Err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("search failed for %s: %v", loc, event.Err))
		} else {
			summaries = append(summaries, event.Summary)
		}
		result.Events = append(result.Events, event)
	}

	result.StageBPrompt = BuildRefinePrompt(summaries)
	p.transition(result, StageBRunning)

	stageB, err := p.Ask(ctx, image, result.StageBPrompt, params)
	if err != nil {
		p.transition(result, Failed)
		return result, fmt.Errorf("stage B: %w", err)
	}
	result.StageB = stageB
	p.transition(result, Complete)
	return result, nil
}

func (p *Pipeline) lookup(ctx context.Context, location string) types.EnrichmentEvent {
	event := types.EnrichmentEvent{Location: location, Query: search.Query(location)}
	alerts, err := p.search.Search(ctx, event.Query)
	if err != nil {
		log.Warnf("search for %q failed: %v", event.Query, err)
		event.Err = err
		event.Error = err.Error()
		return event
	}
	event.Alerts = alerts
	event.Summary = Summarize(location, alerts)
	return event
}

func (p *Pipeline) transition(result *EnrichmentResult, to State) {
	from := result.States[len(result.States)-1]
	if !CanTransition(from, to) {
		log.Errorf("illegal state transition %s -> %s", from, to)
	}
	result.States = append(result.States, to)
	log.Debugf("enrichment %s -> %s", from, to)
	if p.observer != nil {
		p.observer(from, to)
	}
}

// Summarize renders one location's alerts as "<loc>: <title>: <snippet>; ..."
func Summarize(location string, alerts []types.SearchResult) string {
	if len(alerts) == 0 {
		return location + ": " + noAlerts
	}
	parts := make([]string, 0, len(alerts))
	for _, a := range alerts {
		parts = append(parts, a.Title+": "+a.Snippet)
	}
	return location + ": " + strings.Join(parts, "; ")
}

// BuildRefinePrompt renders the stage-B prompt text that precedes the image
func BuildRefinePrompt(summaries []string) string {
	return refinePreamble + strings.Join(summaries, "\n") + mapSuffix
}
