package importer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArchiveConfig holds the object storage settings for upload archival.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Archive stores raw uploads in an S3-compatible bucket.
type Archive struct {
	client *minio.Client
	bucket string
}

// NewArchive connects to object storage and ensures the bucket exists.
// Returns nil without error when no endpoint is configured.
func NewArchive(ctx context.Context, cfg ArchiveConfig) (*Archive, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Archive{client: client, bucket: cfg.Bucket}, nil
}

// Store uploads the raw file under imports/<jobID>/<filename> and returns
// the object key.
func (a *Archive) Store(ctx context.Context, jobID, filename string, data []byte) (string, error) {
	key := fmt.Sprintf("imports/%s/%s", jobID, filename)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return "", fmt.Errorf("archive upload %s: %w", key, err)
	}
	return key, nil
}
