package storage

import (
	"context"
	"fmt"
)

// Store is the object-storage surface used by the scanning pipeline
type Store interface {
	Download(ctx context.Context, bucket, key string, maxBytes int64) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	Ping(ctx context.Context, bucket string) error
}

var (
	_ Store = (*S3Storage)(nil)
	_ Store = (*MinioStorage)(nil)
)

// Options selects and configures a provider
type Options struct {
	Provider string // "s3", "aws", "wasabi" or "minio"
	S3       S3ClientConfig
	Minio    MinioConfig
}

// New builds the Store for the configured provider
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Provider {
	case "", "s3", "aws":
		opts.S3.Provider = S3ProviderAWS
		return NewS3Storage(ctx, opts.S3)
	case "wasabi":
		opts.S3.Provider = S3ProviderWasabi
		return NewS3Storage(ctx, opts.S3)
	case "minio":
		return NewMinioStorage(opts.Minio)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", opts.Provider)
	}
}
