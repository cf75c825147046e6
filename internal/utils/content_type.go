package utils

import (
	"mime"
	"path/filepath"
	"strings"
)

// ContentTypeByExt resolves a playback content type from a filename
// extension. Audio containers the recorder produces are mapped explicitly;
// anything else falls back to the platform mime table.
func ContentTypeByExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".webm":
		return "audio/webm"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
