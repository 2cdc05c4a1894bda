package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrObjectNotFound is returned when an archived object does not exist
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore holds generated export files. Keys are slash separated and
// relative; callers prefix them with the owning tenant.
type ObjectStore interface {
	Put(ctx context.Context, key string, content io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// ValidateKey rejects keys that could escape their prefix
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty object key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid object key: %s", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid object key: %s", key)
		}
	}
	return nil
}

// NewObjectStore builds the archive configured by cfg. It returns nil, nil
// when archiving is disabled.
func NewObjectStore(ctx context.Context, cfg Config) (ObjectStore, error) {
	switch cfg.ArchiveType {
	case "", "none":
		return nil, nil
	case "filesystem":
		return NewFileSystemStore(cfg.ArchiveDir)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.ArchiveType)
	}
}
