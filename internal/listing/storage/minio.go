package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"ms-boost/internal/config"
	"ms-boost/internal/logger"
	"ms-boost/internal/models"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore keeps listing images in an S3 compatible bucket.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
	log     *logger.Logger
}

func NewMinioStore(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client for %s: %w", cfg.Endpoint, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info("STORAGE", fmt.Sprintf("Created bucket %s", cfg.Bucket))
	}

	base := strings.TrimRight(cfg.PublicURL, "/")
	if base == "" {
		base = client.EndpointURL().String()
	}

	log.Info("STORAGE", fmt.Sprintf("Image storage ready at %s/%s", base, cfg.Bucket))
	return &MinioStore{client: client, bucket: cfg.Bucket, baseURL: base, log: log}, nil
}

func ObjectKey(fileName string) string {
	return fmt.Sprintf("listings/%s%s", uuid.NewString(), strings.ToLower(filepath.Ext(fileName)))
}

func (s *MinioStore) Upload(ctx context.Context, fileName, contentType string, data []byte) (models.ListingImage, error) {
	key := ObjectKey(fileName)
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"original-filename": filepath.Base(fileName)},
	})
	if err != nil {
		return models.ListingImage{}, fmt.Errorf("upload %s to bucket %s: %w", key, s.bucket, err)
	}

	s.log.Debug("STORAGE", fmt.Sprintf("Uploaded %s (%d bytes, etag %s)", key, info.Size, info.ETag))
	return models.ListingImage{
		Key:         key,
		URL:         fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, key),
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s from bucket %s: %w", key, s.bucket, err)
	}
	return nil
}
