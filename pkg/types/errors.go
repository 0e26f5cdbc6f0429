package types

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedMediaType is returned for uploads whose name does not end in .png, .jpg or .jpeg
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrNotFound is returned when no stored image has the requested hash
	ErrNotFound = errors.New("image not found")
	// ErrMalformedResponse is returned when a 2xx response body cannot be decoded
	ErrMalformedResponse = errors.New("malformed response")
	// ErrMalformedEnrichment marks a first-pass answer that is not a JSON array of events.
	// It never aborts a pipeline run.
	ErrMalformedEnrichment = errors.New("malformed enrichment json")
	// ErrImageTooLarge is returned when the encoded image exceeds the inline payload limit
	ErrImageTooLarge = errors.New("image is too large")
	// ErrUndecodableImage is returned when stored bytes are not a readable png or jpeg
	ErrUndecodableImage = errors.New("image data cannot be decoded")
)

// UpstreamError is returned when a service responded with a non-2xx status.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// TransportError wraps network-level failures (dial, DNS, timeout, truncated body).
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}
