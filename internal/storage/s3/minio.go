package s3

import (
	"context"
	"errors"
	"io"

	"github.com/minio/minio-go/v7"

	"github.com/reyadatime/reyadatime/internal/storage"
)

type minioAPI struct {
	client *minio.Client
}

func (m minioAPI) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	info, err := m.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return storage.ObjectInfo{}, notFound(err)
	}
	return storage.ObjectInfo{Key: info.Key, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified}, nil
}

// GetObject stats before returning so a missing key fails here, not on first read.
func (m minioAPI) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	object, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		return nil, notFound(err)
	}
	return object, nil
}

func (m minioAPI) StatObject(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	info, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, notFound(err)
	}
	return storage.ObjectInfo{Key: info.Key, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified}, nil
}

func (m minioAPI) RemoveObject(ctx context.Context, bucket, key string) error {
	return notFound(m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}))
}

func (m minioAPI) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return m.client.BucketExists(ctx, bucket)
}

func (m minioAPI) MakeBucket(ctx context.Context, bucket, region string) error {
	return m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func notFound(err error) error {
	var response minio.ErrorResponse
	if errors.As(err, &response) {
		switch response.Code {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return storage.ErrObjectNotFound
		}
	}
	return err
}
