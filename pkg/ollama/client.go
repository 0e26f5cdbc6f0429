package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/vision-amp/pkg/types"
)

const defaultTimeout = 300 * time.Second

// Client wraps the Ollama API client
type Client struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

// NewClient creates a new Ollama client for the given model
func NewClient(ollamaURL, model string, timeout time.Duration) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q", ollamaURL)
	}

	// Create base URL from the provided URL (removing path like /api/chat)
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	// Create client with the specified URL, ignoring environment
	client := api.NewClient(baseURL, &http.Client{Timeout: timeout})

	return &Client{client: client, model: model, timeout: timeout}, nil
}

// Ask sends the prompt with the raw image attached through the native images field
func (c *Client) Ask(ctx context.Context, req types.VisionRequest) (types.VisionResponse, error) {
	if req.Image == nil {
		return types.VisionResponse{}, fmt.Errorf("no image attached to request")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	stream := req.Params.Stream
	chatReq := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: req.Prompt,
				Images:  []api.ImageData{api.ImageData(req.Image.Data)},
			},
		},
		Stream: &stream,
		Options: map[string]any{
			"temperature": req.Params.Temperature,
			"top_p":       req.Params.TopP,
			"num_predict": req.Params.MaxTokens,
		},
	}

	var sb strings.Builder
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		sb.WriteString(resp.Message.Content)
		if stream && req.OnDelta != nil {
			req.OnDelta(resp.Message.Content)
		}
		return nil
	})
	if err != nil {
		return types.VisionResponse{}, convertError(err)
	}

	if sb.Len() == 0 {
		return types.VisionResponse{Text: types.NoResponseText, Fallback: true}, nil
	}
	return types.VisionResponse{Text: sb.String()}, nil
}

func convertError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		body := statusErr.ErrorMessage
		if body == "" {
			body = statusErr.Status
		}
		return &types.UpstreamError{StatusCode: statusErr.StatusCode, Body: body}
	}
	return &types.TransportError{Cause: fmt.Errorf("ollama chat error: %w", err)}
}
