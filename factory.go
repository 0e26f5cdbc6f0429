package visionamp

import (
	"context"
	"fmt"

	"github.com/menta2k/vision-amp/internal/config"
	"github.com/menta2k/vision-amp/pkg/client"
	"github.com/menta2k/vision-amp/pkg/googlesearch"
	"github.com/menta2k/vision-amp/pkg/nim"
	"github.com/menta2k/vision-amp/pkg/ollama"
	"github.com/menta2k/vision-amp/pkg/openai"
	"github.com/menta2k/vision-amp/pkg/serper"
)

// VisionFactory builds the vision client for a model configuration
type VisionFactory func(model config.ModelConfig) (client.VisionClient, error)

// NewVisionFactory returns a factory for the configured backend. Tokens are
// read from the environment when a client is built.
func NewVisionFactory(backend string, req config.RequestConfig) VisionFactory {
	return func(m config.ModelConfig) (client.VisionClient, error) {
		token, err := m.Token()
		if err != nil {
			return nil, err
		}

		switch backend {
		case config.BackendNIM, "":
			return nim.NewClient(m.InvokeURL, m.Model, token,
				nim.WithTimeout(req.Timeout),
				nim.WithMaxInlineImageBytes(req.MaxInlineImageBytes),
			)
		case config.BackendOpenAI:
			return openai.NewClient(m.InvokeURL, m.Model, token, openai.WithTimeout(req.Timeout))
		case config.BackendOllama:
			return ollama.NewClient(m.InvokeURL, m.Model, req.Timeout)
		default:
			return nil, fmt.Errorf("unknown backend: %s", backend)
		}
	}
}

// NewSearchClient builds the configured search backend. It returns nil without
// error when search is disabled.
func NewSearchClient(ctx context.Context, cfg config.SearchConfig, req config.RequestConfig) (client.SearchClient, error) {
	switch cfg.Provider {
	case config.SearchNone, "":
		return nil, nil
	}

	key, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case config.SearchSerper:
		return serper.NewClient(cfg.Endpoint, key, cfg.MaxResults, req.Timeout)
	case config.SearchGoogle:
		return googlesearch.NewClient(ctx, key, cfg.CX, cfg.Endpoint, cfg.MaxResults)
	default:
		return nil, fmt.Errorf("unknown search provider: %s", cfg.Provider)
	}
}
