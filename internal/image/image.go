// Package image loads and validates image attachments for multimodal
// user messages.
package image

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/vtcode/vtcode/internal/message"
)

// MaxImageSize caps attachments at 5MB; anything larger would dominate
// the request payload.
const MaxImageSize = 5 * 1024 * 1024

// SupportedTypes maps accepted extensions to their MIME types.
var SupportedTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// ImageInfo is one loaded, validated image.
type ImageInfo struct {
	Path      string
	MediaType string
	Data      []byte
	Size      int
	FileName  string
}

// IsImageFile reports whether the extension names a supported format.
func IsImageFile(path string) bool {
	_, ok := SupportedTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Load reads an image, checking extension, size cap, and sniffed content
// type (the extension alone is not trusted).
func Load(path string) (*ImageInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	mediaType, ok := SupportedTypes[strings.ToLower(filepath.Ext(abs))]
	if !ok {
		return nil, fmt.Errorf("unsupported image format: %s", filepath.Ext(abs))
	}

	info, err := os.Stat(abs)
	switch {
	case os.IsNotExist(err):
		return nil, fmt.Errorf("file not found: %s", path)
	case err != nil:
		return nil, fmt.Errorf("cannot access file: %w", err)
	case info.Size() > MaxImageSize:
		return nil, fmt.Errorf("image too large: %d bytes (max %d)", info.Size(), MaxImageSize)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		return nil, fmt.Errorf("file is not a valid image")
	}

	return &ImageInfo{
		Path:      abs,
		MediaType: mediaType,
		Data:      data,
		Size:      len(data),
		FileName:  filepath.Base(abs),
	}, nil
}

// ToBase64 encodes the raw bytes for a data-url content part.
func (i *ImageInfo) ToBase64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// ToProviderData converts the image to the message-layer attachment type.
func (i *ImageInfo) ToProviderData() message.ImageData {
	return message.ImageData{
		MediaType: i.MediaType,
		Data:      i.ToBase64(),
		FileName:  i.FileName,
		Size:      i.Size,
	}
}

// FormatBytes renders a byte count for status lines.
func FormatBytes(bytes int) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
