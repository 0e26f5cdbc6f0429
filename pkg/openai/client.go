// Package openai sends vision requests through the openai-go SDK, attaching the
// image as a structured image_url content part instead of inline markup.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/menta2k/vision-amp/pkg/types"
)

const defaultTimeout = 5 * time.Minute

// Client wraps the openai-go chat completions service
type Client struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// Option customizes a Client
type Option func(*options)

type options struct {
	httpClient *http.Client
	timeout    time.Duration
}

// WithHTTPClient replaces the HTTP client used by the SDK
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithTimeout bounds each request when the caller's context has no deadline
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// BaseURL turns a full invoke URL into the base URL the SDK expects.
func BaseURL(invokeURL string) string {
	base := strings.TrimSuffix(strings.TrimSuffix(invokeURL, "/"), "/chat/completions")
	return base + "/"
}

// NewClient creates a client for invokeURL. Retries are disabled; every failure is reported once.
func NewClient(invokeURL, model, token string, opts ...Option) (*Client, error) {
	if invokeURL == "" {
		return nil, fmt.Errorf("invoke URL is required")
	}
	o := options{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: o.timeout}
	}

	client := openai.NewClient(
		openaiopt.WithBaseURL(BaseURL(invokeURL)),
		openaiopt.WithAPIKey(token),
		openaiopt.WithHTTPClient(o.httpClient),
		openaiopt.WithMaxRetries(0),
	)
	return &Client{client: client, model: model, timeout: o.timeout}, nil
}

// BuildParams renders the SDK request for req
func (c *Client) BuildParams(req types.VisionRequest) (openai.ChatCompletionNewParams, error) {
	if req.Image == nil {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("no image attached to request")
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		{
			OfText: &openai.ChatCompletionContentPartTextParam{
				Text: req.Prompt,
			},
		},
		{
			OfImageURL: &openai.ChatCompletionContentPartImageParam{
				ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
					URL: req.Image.DataURL(),
				},
			},
		},
	}

	return openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: parts,
					},
				},
			},
		},
		MaxTokens:   openai.Int(int64(req.Params.MaxTokens)),
		Temperature: openai.Float(req.Params.Temperature),
		TopP:        openai.Float(req.Params.TopP),
	}, nil
}

// Ask sends req and extracts the first choice's content
func (c *Client) Ask(ctx context.Context, req types.VisionRequest) (types.VisionResponse, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params, err := c.BuildParams(req)
	if err != nil {
		return types.VisionResponse{}, err
	}

	if req.Params.Stream {
		return c.askStreaming(ctx, params, req.OnDelta)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return types.VisionResponse{}, convertError(err)
	}
	if len(completion.Choices) == 0 || !completion.Choices[0].Message.JSON.Content.Valid() {
		return types.VisionResponse{Text: types.NoResponseText, Fallback: true}, nil
	}
	return types.VisionResponse{Text: completion.Choices[0].Message.Content}, nil
}

func (c *Client) askStreaming(ctx context.Context, params openai.ChatCompletionNewParams, onDelta func(string)) (types.VisionResponse, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		sb.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return types.VisionResponse{}, convertError(err)
	}
	if sb.Len() == 0 {
		return types.VisionResponse{Text: types.NoResponseText, Fallback: true}, nil
	}
	return types.VisionResponse{Text: sb.String()}, nil
}

// convertError maps SDK errors onto the module's error taxonomy
func convertError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &types.UpstreamError{StatusCode: apiErr.StatusCode, Body: upstreamBody(apiErr)}
	}
	return &types.TransportError{Cause: err}
}

// upstreamBody returns the response body exactly as the service sent it.
// The SDK re-populates the body after decoding it, so it can be read again.
func upstreamBody(apiErr *openai.Error) string {
	if apiErr.Response != nil && apiErr.Response.Body != nil {
		body, err := io.ReadAll(apiErr.Response.Body)
		if err == nil && len(body) > 0 {
			apiErr.Response.Body = io.NopCloser(bytes.NewReader(body))
			return string(body)
		}
	}
	if raw := apiErr.RawJSON(); raw != "" {
		return raw
	}
	return apiErr.Error()
}
