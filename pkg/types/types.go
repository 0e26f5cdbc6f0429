package types

import (
	"encoding/base64"
	"time"
)

// NoResponseText is returned in place of model output when the service answers
// with well-formed JSON that carries no message content.
const NoResponseText = "No response received."

// Supported MIME types for uploaded images
const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
)

// StoredImage is one entry of an image store. Data is owned by the store and
// must not be modified by callers.
type StoredImage struct {
	ID         string    `json:"id"`
	Hash       string    `json:"hash"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mime_type"`
	Size       int       `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
	Data       []byte    `json:"-"`
}

// ModelParams are the sampling parameters sent with every vision request
type ModelParams struct {
	MaxTokens   int     `json:"max_tokens" yaml:"maxTokens" validate:"min=1,max=10240"`
	Temperature float64 `json:"temperature" yaml:"temperature" validate:"min=0,max=2"`
	TopP        float64 `json:"top_p" yaml:"topP" validate:"min=0,max=1"`
	Stream      bool    `json:"stream" yaml:"stream"`
}

// DefaultModelParams mirrors the values used by the hosted endpoints' examples
func DefaultModelParams() ModelParams {
	return ModelParams{
		MaxTokens:   1024,
		Temperature: 1.0,
		TopP:        1.0,
		Stream:      false,
	}
}

// VisionRequest is a single prompt about a single image.
type VisionRequest struct {
	Prompt string
	Image  *StoredImage
	Params ModelParams

	// OnDelta, when set, receives streamed content chunks as they arrive.
	// It is only called when Params.Stream is true.
	OnDelta func(chunk string)
}

// VisionResponse holds the text extracted from a completion
type VisionResponse struct {
	Text     string `json:"text"`
	Fallback bool   `json:"fallback,omitempty"`
}

// SearchResult is one organic result returned by a search backend
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// EnrichmentEvent is one location reported by the first analysis pass together
// with the alerts found for it.
type EnrichmentEvent struct {
	Location string         `json:"location"`
	Query    string         `json:"query"`
	Alerts   []SearchResult `json:"alerts,omitempty"`
	Summary  string         `json:"summary,omitempty"`
	Error    string         `json:"error,omitempty"`
	Err      error          `json:"-"`
}

// Base64 returns the payload in standard base64 encoding
func (img *StoredImage) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// DataURL returns the payload as a data: URL
func (img *StoredImage) DataURL() string {
	return "data:" + img.MimeType + ";base64," + img.Base64()
}

// InlineTag returns the HTML-like image reference understood by endpoints that
// take the image inside the message text.
func (img *StoredImage) InlineTag() string {
	return `<img src="` + img.DataURL() + `" />`
}
