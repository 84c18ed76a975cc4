package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/reyadatime/reyadatime/internal/errs"
	"github.com/reyadatime/reyadatime/internal/observability"
)

// sniffLen is how much of a body is read to detect its content type.
const sniffLen = 3072

// Service hands out bucket handles. Resolve maps a logical bucket name to the
// object store holding it; PublicBaseURL is the public read root for objects.
type Service struct {
	Resolve       func(bucket string) (ObjectStore, error)
	PublicBaseURL string
	Logger        *slog.Logger
}

// NewService serves every logical bucket from store.
func NewService(store ObjectStore, publicBaseURL string, logger *slog.Logger) *Service {
	return &Service{
		Resolve:       func(string) (ObjectStore, error) { return store, nil },
		PublicBaseURL: publicBaseURL,
		Logger:        logger,
	}
}

func (s *Service) From(bucket string) *Bucket {
	return &Bucket{
		name:    bucket,
		service: s,
		logger:  observability.WithComponent(s.Logger, "storage").With(slog.String("bucket", bucket)),
	}
}

// File is an upload payload. A negative Size means the length is unknown and the
// body is buffered to measure it.
type File struct {
	Body         io.Reader
	Size         int64
	ContentType  string
	CacheControl string
}

// bucketMetadataKey records the logical bucket on every object, since several
// logical buckets may share one physical bucket.
const bucketMetadataKey = "Reyada-Bucket"

type UploadResult struct {
	Path      string `json:"path"`
	FullPath  string `json:"fullPath"`
	PublicURL string `json:"publicUrl"`
}

type Bucket struct {
	name    string
	service *Service
	logger  *slog.Logger
}

func (b *Bucket) store() (ObjectStore, error) {
	if b.service.Resolve == nil {
		return nil, fmt.Errorf("no object store configured for bucket %q", b.name)
	}
	store, err := b.service.Resolve(b.name)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("no object store configured for bucket %q", b.name)
	}
	return store, nil
}

// Upload writes file under path with an explicit content length.
func (b *Bucket) Upload(ctx context.Context, path string, file File) (UploadResult, error) {
	key, err := CleanKey(path)
	if err != nil {
		return UploadResult{}, errs.Wrap(errs.KindValidation, err)
	}
	if file.Body == nil {
		return UploadResult{}, errs.New(errs.KindValidation, "upload body is required")
	}

	body, size, contentType, err := prepareBody(file)
	if err == nil {
		var store ObjectStore
		store, err = b.store()
		if err == nil {
			_, err = store.Put(ctx, key, body, size, PutOptions{
				ContentType:  contentType,
				CacheControl: file.CacheControl,
				Metadata:     map[string]string{bucketMetadataKey: b.name},
			})
		}
	}
	observability.ObserveStorage("upload", err)
	if err != nil {
		b.logger.ErrorContext(ctx, "upload failed",
			slog.String("path", key),
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("error", err.Error()),
		)
		return UploadResult{}, errs.Wrap(errs.KindTransport, err)
	}

	b.logger.DebugContext(ctx, "object uploaded",
		slog.String("path", key),
		slog.Int64("size", size),
		slog.String("content_type", contentType),
	)
	stored := b.storedKey(key)
	return UploadResult{Path: key, FullPath: stored, PublicURL: b.publicURL(stored)}, nil
}

// GetPublicURL derives the public address of path without contacting the store.
// path is normalized the same way Upload normalizes it.
func (b *Bucket) GetPublicURL(path string) string {
	key, err := CleanKey(path)
	if err != nil {
		return b.publicURL(strings.TrimPrefix(path, "/"))
	}
	return b.publicURL(b.storedKey(key))
}

// storedKey maps a clean key to where the store keeps it.
func (b *Bucket) storedKey(key string) string {
	store, err := b.store()
	if err != nil {
		return key
	}
	mapper, ok := store.(KeyMapper)
	if !ok {
		return key
	}
	if stored, err := mapper.StoredKey(key); err == nil {
		return stored
	}
	return key
}

func (b *Bucket) publicURL(key string) string {
	return strings.TrimRight(b.service.PublicBaseURL, "/") + "/" + key
}

// Remove deletes path. A missing object is not an error.
func (b *Bucket) Remove(ctx context.Context, path string) error {
	key, err := CleanKey(path)
	if err != nil {
		return errs.Wrap(errs.KindValidation, err)
	}

	store, err := b.store()
	if err == nil {
		err = store.Delete(ctx, key)
		if errors.Is(err, ErrObjectNotFound) {
			err = nil
		}
	}
	observability.ObserveStorage("remove", err)
	if err != nil {
		b.logger.ErrorContext(ctx, "delete failed",
			slog.String("path", key),
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("error", err.Error()),
		)
		return errs.Wrap(errs.KindTransport, err)
	}
	return nil
}

// prepareBody resolves the length and content type of file, reading ahead only
// as far as needed.
func prepareBody(file File) (io.Reader, int64, string, error) {
	contentType := strings.TrimSpace(file.ContentType)

	if file.Size < 0 {
		data, err := io.ReadAll(file.Body)
		if err != nil {
			return nil, 0, "", fmt.Errorf("read upload body: %w", err)
		}
		if contentType == "" {
			contentType = mimetype.Detect(data).String()
		}
		return bytes.NewReader(data), int64(len(data)), contentType, nil
	}

	if contentType != "" {
		return file.Body, file.Size, contentType, nil
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, 0, "", fmt.Errorf("read upload body: %w", err)
	}
	head = head[:n]
	return io.MultiReader(bytes.NewReader(head), file.Body), file.Size, mimetype.Detect(head).String(), nil
}
