package client

import (
	"context"

	"github.com/menta2k/vision-amp/pkg/types"
)

// VisionClient sends one prompt and one image to a vision-completion service.
type VisionClient interface {
	Ask(ctx context.Context, req types.VisionRequest) (types.VisionResponse, error)
}

// SearchClient runs a free-text web search and returns its organic results.
// An empty result slice is a valid answer.
type SearchClient interface {
	Search(ctx context.Context, query string) ([]types.SearchResult, error)
}
