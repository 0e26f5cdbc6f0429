// Package googlesearch queries Google Programmable Search through the
// Custom Search JSON API.
package googlesearch

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/menta2k/vision-amp/pkg/search"
	"github.com/menta2k/vision-amp/pkg/types"
)

// The API returns at most ten items per page.
const maxPageSize = 10

type Client struct {
	service    *customsearch.Service
	cx         string
	maxResults int
}

// NewClient creates a client for the search engine identified by cx.
// endpoint overrides the API base URL when non-empty.
func NewClient(ctx context.Context, apiKey, cx, endpoint string, maxResults int) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google search API key is required")
	}
	if cx == "" {
		return nil, fmt.Errorf("google search engine id (cx) is required")
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	service, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create custom search service: %w", err)
	}

	if maxResults <= 0 {
		maxResults = search.DefaultMaxResults
	}
	if maxResults > maxPageSize {
		maxResults = maxPageSize
	}
	return &Client{service: service, cx: cx, maxResults: maxResults}, nil
}

// Search runs query against the configured engine
func (c *Client) Search(ctx context.Context, query string) ([]types.SearchResult, error) {
	resp, err := c.service.Cse.List().
		Cx(c.cx).
		Q(query).
		Num(int64(c.maxResults)).
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, &types.UpstreamError{StatusCode: apiErr.Code, Body: apiErr.Body}
		}
		return nil, &types.TransportError{Cause: err}
	}

	results := make([]types.SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil {
			continue
		}
		snippet := item.Snippet
		if snippet == "" {
			snippet = item.HtmlSnippet
		}
		results = append(results, types.SearchResult{Title: item.Title, Snippet: snippet, Link: item.Link})
	}
	return search.Normalize(results, c.maxResults), nil
}
