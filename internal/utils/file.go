package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var imageExts = []string{"jpg", "jpeg", "png", "webp"}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// GetFileExtension returns the lowercase file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has a photo extension pawcrop can decode
func IsImageFile(filename string) bool {
	ext := GetFileExtension(filename)
	for _, imgExt := range imageExts {
		if ext == imgExt {
			return true
		}
	}
	return false
}

// CropFilename names one rendered crop: <dir>/<prefix><photo><suffix>_<size>.<format>
func CropFilename(outputDir, prefix, photoID, suffix string, size int, format string) string {
	if format == "" {
		format = "jpg"
	}
	name := fmt.Sprintf("%s%s%s_%d.%s", prefix, SanitizeFilename(photoID), suffix, size, format)
	return filepath.Join(outputDir, name)
}

// PhotoIDFromPath derives a photo id from a file name when none is given.
// Only a photo extension is dropped, so "rex.v2" and "rex.v3" stay distinct.
func PhotoIDFromPath(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	if IsImageFile(base) {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return SanitizeFilename(base)
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	return strings.Trim(result, " .")
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
