// Package filehandler recognises the image files the crop pipeline accepts
// and discovers them on disk.
package filehandler

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// SupportedImageExtensions defines the file extensions accepted for cropping.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// ImageFile is an image found on disk.
type ImageFile struct {
	Path     string
	MIMEType string
	Size     int64
}

// LoadImageFile stats filePath and returns an ImageFile when it is a regular
// file with a supported extension.
func LoadImageFile(filePath string) (*ImageFile, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", filePath)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	mimeType, err := GetMIMEType(filepath.Ext(filePath))
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("path", filePath).
		Str("mime_type", mimeType).
		Int64("size_bytes", info.Size()).
		Msg("Image file loaded")

	return &ImageFile{Path: filePath, MIMEType: mimeType, Size: info.Size()}, nil
}

// GetMIMEType returns the MIME type for a given file extension.
func GetMIMEType(ext string) (string, error) {
	if mimeType, ok := SupportedImageExtensions[strings.ToLower(ext)]; ok {
		return mimeType, nil
	}
	return "", fmt.Errorf("unsupported file extension: %s", ext)
}

// IsImage returns true if the file extension corresponds to a supported image.
func IsImage(ext string) bool {
	_, ok := SupportedImageExtensions[strings.ToLower(ext)]
	return ok
}

// IsAllowedMIMEType reports whether an upload's declared content type is one
// of the supported image types.
func IsAllowedMIMEType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "image/jpg" {
		return true
	}
	for _, m := range SupportedImageExtensions {
		if m == mimeType {
			return true
		}
	}
	return false
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._ ()-]`)

// SanitizeFilename reduces name to its base and replaces characters outside
// a conservative allowlist, so it can be joined onto a batch directory.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ". ")
	if name == "" || name == "_" {
		return "image"
	}
	if len(name) > 200 {
		ext := filepath.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = name[:200-len(ext)] + ext
	}
	return name
}
