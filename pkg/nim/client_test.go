package nim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/vision-amp/pkg/types"
)

func testImage() *types.StoredImage {
	return &types.StoredImage{Name: "map.png", MimeType: types.MimePNG, Data: []byte("png-bytes")}
}

func testRequest(prompt string) types.VisionRequest {
	return types.VisionRequest{Prompt: prompt, Image: testImage(), Params: types.DefaultModelParams()}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := NewClient(server.URL+"/v1/chat/completions", "meta/llama-3.2-11b-vision-instruct", "secret", opts...)
	require.NoError(t, err)
	return c
}

func TestAskReturnsContent(t *testing.T) {
	var got ChatCompletionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"X"}}]}`)
	})

	resp, err := c.Ask(context.Background(), testRequest("what is flooded?"))
	require.NoError(t, err)
	assert.Equal(t, "X", resp.Text)
	assert.False(t, resp.Fallback)

	assert.Equal(t, "meta/llama-3.2-11b-vision-instruct", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, `what is flooded? <img src="data:image/png;base64,cG5nLWJ5dGVz" />`, got.Messages[0].Content)
	assert.Equal(t, 1024, got.MaxTokens)
	assert.Equal(t, 1.0, got.Temperature)
	assert.Equal(t, 1.0, got.TopP)
	assert.False(t, got.Stream)
}

func TestAskSendsZeroTemperature(t *testing.T) {
	var raw map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	})

	req := testRequest("p")
	req.Params.Temperature = 0
	_, err := c.Ask(context.Background(), req)
	require.NoError(t, err)

	value, ok := raw["temperature"]
	assert.True(t, ok, "temperature must always be sent")
	assert.Equal(t, 0.0, value)
}

func TestAskFallbackWhenContentMissing(t *testing.T) {
	bodies := []string{
		`{"choices":[{"message":{}}]}`,
		`{"choices":[]}`,
		`{}`,
		`{"choices":[{"message":{"content":null}}]}`,
	}
	for _, body := range bodies {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		})

		resp, err := c.Ask(context.Background(), testRequest("p"))
		require.NoError(t, err, body)
		assert.Equal(t, "No response received.", resp.Text, body)
		assert.True(t, resp.Fallback, body)
	}
}

func TestAskArrayContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}}]}`)
	})

	resp, err := c.Ask(context.Background(), testRequest("p"))
	require.NoError(t, err)
	assert.Equal(t, "ab", resp.Text)
}

func TestAskUpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "server error")
	})

	_, err := c.Ask(context.Background(), testRequest("p"))
	var upstream *types.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, 500, upstream.StatusCode)
	assert.Equal(t, "server error", upstream.Body)
}

func TestAskMalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>gateway</html>")
	})

	_, err := c.Ask(context.Background(), testRequest("p"))
	assert.ErrorIs(t, err, types.ErrMalformedResponse)
}

func TestAskTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	c, err := NewClient(endpoint, "m", "t")
	require.NoError(t, err)

	_, err = c.Ask(context.Background(), testRequest("p"))
	var transport *types.TransportError
	require.ErrorAs(t, err, &transport)
	assert.NotNil(t, transport.Cause)
}

func TestAskTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(50*time.Millisecond))
	defer close(release)

	_, err := c.Ask(context.Background(), testRequest("p"))
	var transport *types.TransportError
	assert.ErrorAs(t, err, &transport)
}

func TestAskStreaming(t *testing.T) {
	var chunks []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Flood", "ing ", "north"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	req := testRequest("p")
	req.Params.Stream = true
	req.OnDelta = func(chunk string) { chunks = append(chunks, chunk) }

	resp, err := c.Ask(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Flooding north", resp.Text)
	assert.Equal(t, []string{"Flood", "ing ", "north"}, chunks)
}

func TestAskStreamingWithoutContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	req := testRequest("p")
	req.Params.Stream = true
	resp, err := c.Ask(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Fallback)
}

func TestBuildRequestImageTooLarge(t *testing.T) {
	c, err := NewClient("https://example.com/v1/chat/completions", "m", "t", WithMaxInlineImageBytes(8))
	require.NoError(t, err)

	req := testRequest("p")
	req.Image.Data = []byte(strings.Repeat("x", 64))
	_, err = c.BuildRequest(req)
	assert.ErrorIs(t, err, types.ErrImageTooLarge)
}

func TestBuildRequestWithoutImage(t *testing.T) {
	c, err := NewClient("https://example.com/v1/chat/completions", "m", "t")
	require.NoError(t, err)

	_, err = c.BuildRequest(types.VisionRequest{Prompt: "p"})
	assert.Error(t, err)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("ftp://example.com", "m", "t")
	assert.Error(t, err)
	_, err = NewClient("://bad", "m", "t")
	assert.Error(t, err)
}

func TestUpstreamErrorIsNotTransport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail":"Unauthorized"}`)
	})

	_, err := c.Ask(context.Background(), testRequest("p"))
	var transport *types.TransportError
	assert.False(t, errors.As(err, &transport))
}
