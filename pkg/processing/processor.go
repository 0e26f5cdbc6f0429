package processing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/menta2k/vision-amp/pkg/types"
)

// Thumbnail formats
const (
	FormatWebP = "webp"
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

const userAgent = "vision-amp/1.0"

// MaxDownloadBytes caps an image fetched from a URL, matching the HTTP upload limit
const MaxDownloadBytes = 32 << 20

// Processor loads upload sources and renders gallery thumbnails.
// Uploaded bytes are never modified; thumbnails are separate renditions.
type Processor struct {
	httpClient       *http.Client
	maxDownloadBytes int64
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxDownloadBytes: MaxDownloadBytes,
	}
}

// Info describes an image without decoding its pixels
type Info struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// LoadSource reads raw image bytes from a file path or an http(s) URL and
// returns them with a display name carrying the file extension.
func (p *Processor) LoadSource(ctx context.Context, source string) ([]byte, string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadFromURL(ctx, source)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", source, err)
	}
	return data, filepath.Base(source), nil
}

// LoadFromURL downloads an image and returns its raw bytes
func (p *Processor) LoadFromURL(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxDownloadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > p.maxDownloadBytes {
		return nil, "", fmt.Errorf("%w: download exceeds %d bytes", types.ErrImageTooLarge, p.maxDownloadBytes)
	}
	return data, nameFromURL(parsedURL, contentType), nil
}

// nameFromURL uses the last path segment, adding an extension from the content type when it has none
func nameFromURL(u *url.URL, contentType string) string {
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		name = "download"
	}
	if path.Ext(name) != "" {
		return name
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return name
	}
	switch mediaType {
	case types.MimePNG:
		return name + ".png"
	case types.MimeJPEG:
		return name + ".jpg"
	}
	return name
}

// Inspect reads the image header
func (p *Processor) Inspect(data []byte) (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", types.ErrUndecodableImage, err)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// Thumbnail renders data scaled to fit within size x size and returns the
// encoded bytes with their MIME type.
func (p *Processor) Thumbnail(data []byte, size int, format string, quality int) ([]byte, string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", types.ErrUndecodableImage, err)
	}

	if size > 0 {
		b := img.Bounds()
		if b.Dx() > size || b.Dy() > size {
			img = imaging.Fit(img, size, size, imaging.Lanczos)
		}
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case FormatWebP, "":
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, "", fmt.Errorf("failed to encode webp: %w", err)
		}
		return buf.Bytes(), "image/webp", nil
	case FormatPNG:
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, "", fmt.Errorf("failed to encode png: %w", err)
		}
		return buf.Bytes(), types.MimePNG, nil
	case FormatJPEG, "jpg":
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, "", fmt.Errorf("failed to encode jpeg: %w", err)
		}
		return buf.Bytes(), types.MimeJPEG, nil
	default:
		return nil, "", fmt.Errorf("unsupported thumbnail format: %s", format)
	}
}
