package storage

import (
	"context"
	"fmt"

	"go-filescan-backend/pkg/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage implements domain.ObjectStorage for MinIO deployments
type MinioStorage struct {
	client *minio.Client
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	logger.Log.Info("MinIO client configured", "endpoint", cfg.Endpoint, "ssl", cfg.UseSSL)
	return &MinioStorage{client: client}, nil
}

func (m *MinioStorage) Download(ctx context.Context, bucket, key string, maxBytes int64) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	// GetObject is lazy; Stat surfaces missing keys before reading
	if _, err := obj.Stat(); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("failed to stat object %s/%s: %w", bucket, key, err)
	}

	return readCapped(obj, maxBytes)
}

func (m *MinioStorage) Delete(ctx context.Context, bucket, key string) error {
	if err := m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Ping checks that the bucket is reachable
func (m *MinioStorage) Ping(ctx context.Context, bucket string) error {
	if _, err := m.client.BucketExists(ctx, bucket); err != nil {
		return fmt.Errorf("failed to access bucket %s: %w", bucket, err)
	}
	return nil
}
