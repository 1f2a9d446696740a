package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go-filescan-backend/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Provider represents the S3-compatible storage provider
type S3Provider string

const (
	S3ProviderAWS    S3Provider = "aws"
	S3ProviderWasabi S3Provider = "wasabi"
)

// ErrObjectNotFound is returned when the object does not exist
var ErrObjectNotFound = errors.New("object not found")

// S3ClientConfig holds configuration for S3-compatible storage
type S3ClientConfig struct {
	Provider        S3Provider
	AccessKeyID     string
	SecretAccessKey string
	Region          string

	// Wasabi-specific settings
	WasabiEndpoint string // e.g., "s3.ap-southeast-1.wasabisys.com"
}

// WasabiEndpoints maps regions to Wasabi endpoints
var WasabiEndpoints = map[string]string{
	"us-east-1":      "s3.us-east-1.wasabisys.com",
	"us-east-2":      "s3.us-east-2.wasabisys.com",
	"us-west-1":      "s3.us-west-1.wasabisys.com",
	"eu-central-1":   "s3.eu-central-1.wasabisys.com",
	"eu-west-1":      "s3.eu-west-1.wasabisys.com",
	"ap-northeast-1": "s3.ap-northeast-1.wasabisys.com",
	"ap-southeast-1": "s3.ap-southeast-1.wasabisys.com",
}

// ResolveWasabiEndpoint fills WasabiEndpoint from the region when not set
func (c *S3ClientConfig) ResolveWasabiEndpoint() {
	if c.Provider != S3ProviderWasabi || c.WasabiEndpoint != "" {
		return
	}
	if endpoint, ok := WasabiEndpoints[c.Region]; ok {
		c.WasabiEndpoint = endpoint
		return
	}
	c.WasabiEndpoint = "s3.ap-southeast-1.wasabisys.com"
}

// S3Storage implements domain.ObjectStorage on top of the AWS SDK
type S3Storage struct {
	client *s3.Client
}

// NewS3Storage creates an S3 client with the given config
// Supports both AWS S3 and Wasabi
func NewS3Storage(ctx context.Context, cfg S3ClientConfig) (*S3Storage, error) {
	cfg.ResolveWasabiEndpoint()

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *s3.Client
	switch cfg.Provider {
	case S3ProviderWasabi:
		// Wasabi requires custom endpoint and path-style addressing
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String("https://" + cfg.WasabiEndpoint)
			o.UsePathStyle = true
		})
	default:
		client = s3.NewFromConfig(awsCfg)
	}

	logger.Log.Info("S3 client configured", "provider", cfg.Provider, "region", cfg.Region)
	return &S3Storage{client: client}, nil
}

// Download reads the object, keeping at most maxBytes
func (s *S3Storage) Download(ctx context.Context, bucket, key string, maxBytes int64) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	return readCapped(out.Body, maxBytes)
}

// Delete removes the object. Deleting a missing key is not an error in S3.
func (s *S3Storage) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Ping tests the connection by listing one key of the bucket
func (s *S3Storage) Ping(ctx context.Context, bucket string) error {
	_, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("failed to access bucket %s: %w", bucket, err)
	}
	return nil
}

// readCapped reads r fully, or at most maxBytes when maxBytes > 0
func readCapped(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 {
		r = io.LimitReader(r, maxBytes)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}
