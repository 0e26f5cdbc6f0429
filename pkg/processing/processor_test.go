package processing

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"

	"github.com/menta2k/vision-amp/pkg/types"
)

// createTestImage creates a simple gradient image for testing
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / width), uint8(y * 255 / height), 128, 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	p := NewProcessor()
	data := encodePNG(t, createTestImage(40, 20))

	info, err := p.Inspect(data)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info.Format != "png" || info.Width != 40 || info.Height != 20 {
		t.Errorf("unexpected info: %+v", info)
	}

	if _, err := p.Inspect([]byte("not an image")); !errors.Is(err, types.ErrUndecodableImage) {
		t.Errorf("expected ErrUndecodableImage for garbage input, got %v", err)
	}
}

func TestThumbnailUndecodable(t *testing.T) {
	p := NewProcessor()
	if _, _, err := p.Thumbnail([]byte("not an image"), 64, FormatWebP, 80); !errors.Is(err, types.ErrUndecodableImage) {
		t.Errorf("expected ErrUndecodableImage, got %v", err)
	}
}

func TestThumbnailFormats(t *testing.T) {
	p := NewProcessor()
	data := encodePNG(t, createTestImage(400, 200))

	tests := []struct {
		format   string
		wantMime string
	}{
		{FormatWebP, "image/webp"},
		{FormatPNG, "image/png"},
		{FormatJPEG, "image/jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out, mimeType, err := p.Thumbnail(data, 100, tt.format, 75)
			if err != nil {
				t.Fatalf("Thumbnail failed: %v", err)
			}
			if mimeType != tt.wantMime {
				t.Errorf("expected %s, got %s", tt.wantMime, mimeType)
			}

			var cfg image.Config
			switch tt.format {
			case FormatWebP:
				cfg, err = webp.DecodeConfig(bytes.NewReader(out))
			case FormatPNG:
				cfg, err = png.DecodeConfig(bytes.NewReader(out))
			default:
				cfg, err = jpeg.DecodeConfig(bytes.NewReader(out))
			}
			if err != nil {
				t.Fatalf("failed to decode thumbnail: %v", err)
			}
			if cfg.Width != 100 || cfg.Height != 50 {
				t.Errorf("expected 100x50, got %dx%d", cfg.Width, cfg.Height)
			}
		})
	}
}

func TestThumbnailLeavesSourceUntouched(t *testing.T) {
	p := NewProcessor()
	data := encodePNG(t, createTestImage(300, 300))
	original := append([]byte(nil), data...)

	if _, _, err := p.Thumbnail(data, 64, FormatJPEG, 80); err != nil {
		t.Fatalf("Thumbnail failed: %v", err)
	}
	if !bytes.Equal(original, data) {
		t.Error("source bytes were modified")
	}
}

func TestThumbnailSmallImageNotUpscaled(t *testing.T) {
	p := NewProcessor()
	data := encodePNG(t, createTestImage(30, 10))

	out, _, err := p.Thumbnail(data, 100, FormatPNG, 0)
	if err != nil {
		t.Fatalf("Thumbnail failed: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 30 || cfg.Height != 10 {
		t.Errorf("expected 30x10, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestThumbnailUnsupportedFormat(t *testing.T) {
	p := NewProcessor()
	data := encodePNG(t, createTestImage(10, 10))
	if _, _, err := p.Thumbnail(data, 5, "gif", 80); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoadSourceFile(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()
	path := filepath.Join(dir, "map.png")
	data := encodePNG(t, createTestImage(8, 8))
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	got, name, err := p.LoadSource(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadSource failed: %v", err)
	}
	if name != "map.png" {
		t.Errorf("expected name map.png, got %s", name)
	}
	if !bytes.Equal(got, data) {
		t.Error("file bytes differ")
	}

	if _, _, err := p.LoadSource(context.Background(), filepath.Join(dir, "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadSourceURL(t *testing.T) {
	data := encodePNG(t, createTestImage(8, 8))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/maps/hurricane":
			w.Header().Set("Content-Type", "image/png")
			w.Write(data)
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	p := NewProcessor()
	got, name, err := p.LoadSource(context.Background(), server.URL+"/maps/hurricane")
	if err != nil {
		t.Fatalf("LoadSource failed: %v", err)
	}
	if name != "hurricane.png" {
		t.Errorf("expected hurricane.png, got %s", name)
	}
	if !bytes.Equal(got, data) {
		t.Error("downloaded bytes differ")
	}

	if _, _, err := p.LoadSource(context.Background(), server.URL+"/page"); err == nil {
		t.Error("expected error for non-image content type")
	}
	if _, _, err := p.LoadSource(context.Background(), server.URL+"/missing"); err == nil {
		t.Error("expected error for 404")
	}
}

func TestLoadFromURLRejectsScheme(t *testing.T) {
	p := NewProcessor()
	if _, _, err := p.LoadFromURL(context.Background(), "ftp://example.com/a.png"); err == nil {
		t.Error("expected error for ftp scheme")
	}
}

func TestLoadFromURLSizeCap(t *testing.T) {
	data := encodePNG(t, createTestImage(32, 32))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer server.Close()

	p := NewProcessor()
	if p.maxDownloadBytes != MaxDownloadBytes {
		t.Errorf("expected default cap %d, got %d", MaxDownloadBytes, p.maxDownloadBytes)
	}

	p.maxDownloadBytes = int64(len(data))
	if _, _, err := p.LoadFromURL(context.Background(), server.URL+"/exact.png"); err != nil {
		t.Errorf("download at the cap should succeed: %v", err)
	}

	p.maxDownloadBytes = int64(len(data)) - 1
	_, _, err := p.LoadFromURL(context.Background(), server.URL+"/big.png")
	if !errors.Is(err, types.ErrImageTooLarge) {
		t.Errorf("expected ErrImageTooLarge, got %v", err)
	}
}
