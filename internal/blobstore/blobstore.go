// Package blobstore stores uploaded and generated document files.
package blobstore

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no object exists under a key
var ErrNotFound = errors.New("object not found")

// Object is a stored blob with its metadata
type Object struct {
	Key         string
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// Store keeps blobs under opaque keys
type Store interface {
	// Put stores data under a fresh key beneath prefix and returns the key
	Put(ctx context.Context, prefix, filename, contentType string, data []byte) (string, error)
	// Get fetches a blob by key
	Get(ctx context.Context, key string) (*Object, error)
	// Delete removes a blob; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}

// NewKey builds a collision-free key that keeps the original extension
func NewKey(prefix, filename string) string {
	ext := strings.ToLower(filepath.Ext(SanitizeFilename(filename)))
	return path.Join(prefix, uuid.NewString()+ext)
}

// SanitizeFilename strips directories and characters that do not belong in a
// Content-Disposition header
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == '"', r == '/', r == '\\':
			return -1
		}
		return r
	}, name)
	if name == "." || name == "/" || name == "" {
		return "document"
	}
	return name
}
