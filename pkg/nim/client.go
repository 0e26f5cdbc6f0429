// Package nim talks to hosted chat-completion endpoints (NVIDIA AI, Cloudera AI
// Inference) that take the image inline in the message text as an <img> tag.
package nim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/menta2k/vision-amp/pkg/types"
)

const defaultTimeout = 5 * time.Minute

type Client struct {
	endpoint       string
	model          string
	token          string
	timeout        time.Duration
	maxInlineBytes int
	httpClient     *http.Client
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for requests
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds each request when the caller's context has no deadline
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxInlineImageBytes rejects images whose base64 form is longer than n. Zero disables the check.
func WithMaxInlineImageBytes(n int) Option {
	return func(c *Client) {
		c.maxInlineBytes = n
	}
}

// Message is a chat message whose content is plain text
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the request body posted to the invoke URL
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
	Stream      bool      `json:"stream"`
}

// ChatCompletionResponse is the subset of the completion body we read
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage,omitempty"`
}

type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

// ResponseMessage keeps Content untyped: it is absent, a string, or an array of parts
type ResponseMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewClient creates a client for the given invoke URL and model identifier.
func NewClient(endpoint, model, token string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %q", parsed.Scheme)
	}

	c := &Client{
		endpoint: endpoint,
		model:    model,
		token:    token,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// BuildRequest renders the request body for req without sending it
func (c *Client) BuildRequest(req types.VisionRequest) (ChatCompletionRequest, error) {
	if req.Image == nil {
		return ChatCompletionRequest{}, fmt.Errorf("no image attached to request")
	}
	encoded := req.Image.Base64()
	if c.maxInlineBytes > 0 && len(encoded) >= c.maxInlineBytes {
		return ChatCompletionRequest{}, fmt.Errorf("%w: %d base64 bytes (limit %d)", types.ErrImageTooLarge, len(encoded), c.maxInlineBytes)
	}

	content := req.Prompt + ` <img src="data:` + req.Image.MimeType + `;base64,` + encoded + `" />`
	return ChatCompletionRequest{
		Model: c.model,
		Messages: []Message{
			{
				Role:    "user",
				Content: content,
			},
		},
		MaxTokens:   req.Params.MaxTokens,
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
		Stream:      req.Params.Stream,
	}, nil
}

// Ask posts req and extracts choices[0].message.content from the answer.
func (c *Client) Ask(ctx context.Context, req types.VisionRequest) (types.VisionResponse, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload, err := c.BuildRequest(req)
	if err != nil {
		return types.VisionResponse{}, err
	}

	resp, err := c.sendRequest(ctx, payload)
	if err != nil {
		return types.VisionResponse{}, err
	}
	if payload.Stream {
		return readStream(resp, req.OnDelta)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.VisionResponse{}, &types.TransportError{Cause: fmt.Errorf("failed to read response: %w", err)}
	}
	return parseResponse(body)
}

func (c *Client) sendRequest(ctx context.Context, payload ChatCompletionRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &types.TransportError{Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &types.TransportError{Cause: fmt.Errorf("failed to read error response: %w", err)}
		}
		return nil, &types.UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

func parseResponse(body []byte) (types.VisionResponse, error) {
	var resp ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return types.VisionResponse{}, fmt.Errorf("%w: %v", types.ErrMalformedResponse, err)
	}

	if len(resp.Choices) == 0 {
		return fallback(), nil
	}

	// Extract text from the response (handle both string and array formats)
	switch content := resp.Choices[0].Message.Content.(type) {
	case string:
		return types.VisionResponse{Text: content}, nil
	case []interface{}:
		var parts []string
		for _, item := range content {
			if partMap, ok := item.(map[string]interface{}); ok {
				if text, ok := partMap["text"].(string); ok && text != "" {
					parts = append(parts, text)
				}
			}
		}
		if len(parts) > 0 {
			return types.VisionResponse{Text: strings.Join(parts, "")}, nil
		}
	}

	return fallback(), nil
}

// readStream accumulates delta content from a server-sent event stream
func readStream(resp *http.Response, onDelta func(string)) (types.VisionResponse, error) {
	stream := ssestream.NewStream[openai.ChatCompletionChunk](ssestream.NewDecoder(resp), nil)
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return types.VisionResponse{}, &types.TransportError{Cause: fmt.Errorf("stream interrupted: %w", err)}
	}

	if sb.Len() == 0 {
		return fallback(), nil
	}
	return types.VisionResponse{Text: sb.String()}, nil
}

func fallback() types.VisionResponse {
	return types.VisionResponse{Text: types.NoResponseText, Fallback: true}
}
