package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// PutOptions travel with an object. Metadata keys are stored as user metadata.
type PutOptions struct {
	ContentType  string
	CacheControl string
	Metadata     map[string]string
}

// ObjectStore is a single bucket of an S3-compatible object store.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Delete reports ErrObjectNotFound when the store can tell the key is absent.
	Delete(ctx context.Context, key string) error
}

// KeyMapper is implemented by stores that write an object under a different key
// than the one they are handed, such as a store with a key prefix.
type KeyMapper interface {
	StoredKey(key string) (string, error)
}

// CleanKey strips a leading slash and rejects empty keys and keys that climb
// out of the bucket root.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", errors.New("object key is required")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("object key escapes the bucket: " + key)
	}
	return cleaned, nil
}
