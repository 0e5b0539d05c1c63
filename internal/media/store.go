// Package media persists downloaded protocol media to durable storage and
// hands back URLs the rest of the system references.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store writes media files under a base directory, one subdirectory per
// session. Files are addressed by message id so re-downloads overwrite
// instead of duplicating.
type Store struct {
	dir     string
	baseURL string
}

// NewStore creates the base directory if needed. baseURL is the public path
// prefix ("/media") files are served under.
func NewStore(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Store{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir returns the base directory, for static file serving.
func (s *Store) Dir() string { return s.dir }

// Save writes data and returns the URL it will be served under.
func (s *Store) Save(sessionID, messageID, mimeType string, data []byte) (string, error) {
	name := sanitize(messageID) + extensionFor(mimeType)
	sub := filepath.Join(s.dir, sanitize(sessionID))
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return "", fmt.Errorf("create session media dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(sub, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}
	return s.baseURL + "/" + sanitize(sessionID) + "/" + name, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

func extensionFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(mimeType, "image/png"):
		return ".png"
	case strings.HasPrefix(mimeType, "image/webp"):
		return ".webp"
	case strings.HasPrefix(mimeType, "video/"):
		return ".mp4"
	case strings.HasPrefix(mimeType, "audio/ogg"):
		return ".ogg"
	case strings.HasPrefix(mimeType, "audio/"):
		return ".mp3"
	case strings.HasPrefix(mimeType, "application/pdf"):
		return ".pdf"
	default:
		return ".bin"
	}
}
