package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/menta2k/vision-amp/pkg/types"
)

// mimeByExtension is the upload allow-list
var mimeByExtension = map[string]string{
	"png":  types.MimePNG,
	"jpg":  types.MimeJPEG,
	"jpeg": types.MimeJPEG,
}

// GetFileExtension returns the file extension without the dot, lower-cased
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// MimeTypeFromName infers the MIME type of an upload from its file name.
func MimeTypeFromName(filename string) (string, error) {
	ext := GetFileExtension(filename)
	mime, ok := mimeByExtension[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q (expected .png, .jpg or .jpeg)", types.ErrUnsupportedMediaType, filename)
	}
	return mime, nil
}

// IsImageFile checks if a file has an accepted image extension
func IsImageFile(filename string) bool {
	_, ok := mimeByExtension[GetFileExtension(filename)]
	return ok
}

// ListImageFiles lists the accepted image files directly inside a directory, sorted by name
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && IsImageFile(entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && info.IsDir()
}

// ShortHash trims a hex digest for display
func ShortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
