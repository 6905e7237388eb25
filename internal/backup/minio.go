// Package backup pushes export snapshots to S3-compatible object storage.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Service uploads export snapshots to a single bucket. A nil *Service is
// valid and means backups are not configured.
type Service struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and makes sure the bucket exists. An
// empty endpoint disables backups and returns a nil service.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	if endpoint == "" {
		return nil, nil
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		log.Printf("backup: created bucket %s", bucket)
	}

	return &Service{client: client, bucket: bucket}, nil
}

// Enabled reports whether backups are configured.
func (s *Service) Enabled() bool {
	return s != nil
}

// Upload stores one export snapshot under its filename, overwriting any
// earlier snapshot from the same day.
func (s *Service) Upload(ctx context.Context, filename string, payload []byte) error {
	if s == nil {
		return fmt.Errorf("backups not configured")
	}

	_, err := s.client.PutObject(ctx, s.bucket, filename,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("upload snapshot %s: %w", filename, err)
	}
	return nil
}
