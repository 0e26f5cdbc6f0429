// Package serper queries the Serper Google Search API.
package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/menta2k/vision-amp/pkg/search"
	"github.com/menta2k/vision-amp/pkg/types"
)

// DefaultEndpoint is the public Serper search endpoint
const DefaultEndpoint = "https://google.serper.dev/search"

type Client struct {
	endpoint   string
	apiKey     string
	maxResults int
	httpClient *http.Client
}

type searchRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

type organicResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

type searchResponse struct {
	Organic []organicResult `json:"organic"`
}

// NewClient creates a Serper client. An empty endpoint selects DefaultEndpoint.
func NewClient(endpoint, apiKey string, maxResults int, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("serper API key is required")
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if maxResults <= 0 {
		maxResults = search.DefaultMaxResults
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Search runs query and returns the organic results
func (c *Client) Search(ctx context.Context, query string) ([]types.SearchResult, error) {
	payload, err := json.Marshal(searchRequest{Q: query, Num: c.maxResults})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &types.TransportError{Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.TransportError{Cause: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &types.UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedResponse, err)
	}

	results := make([]types.SearchResult, 0, len(parsed.Organic))
	for _, r := range parsed.Organic {
		results = append(results, types.SearchResult{Title: r.Title, Snippet: r.Snippet, Link: r.Link})
	}
	return search.Normalize(results, c.maxResults), nil
}
