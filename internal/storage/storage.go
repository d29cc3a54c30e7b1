package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrObjectExists is returned by Upload when the key is already taken.
	ErrObjectExists = errors.New("object already exists")
	// ErrObjectNotFound is returned when reading a key that was never stored.
	ErrObjectNotFound = errors.New("object not found")
	// ErrSignatureInvalid is returned for tampered or expired signed URLs.
	ErrSignatureInvalid = errors.New("invalid or expired signature")
)

// ObjectStore is the attachment object storage used by the notes service.
// Uploads never overwrite an existing key.
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PublicURL(key string) string
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, key string) error
}

// NewPath builds a storage key of the form <unix-ms>_<random>.<ext> for the
// given original file name. Names without an extension produce no suffix.
func NewPath(name string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	key := strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix
	if ext := cleanExt(name); ext != "" {
		key += "." + ext
	}
	return key
}

func cleanExt(name string) string {
	ext := strings.TrimPrefix(filepath.Ext(filepath.Base(name)), ".")
	if ext == "" || len(ext) > 16 {
		return ""
	}
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}
