package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const filenameMetaKey = "filename"

// MinIOConfig holds connection settings for an S3-compatible endpoint
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStore stores blobs in a MinIO or S3 bucket
type MinIOStore struct {
	client *minio.Client
	bucket string
	logger *logger.Logger
}

// NewMinIOStore connects to the endpoint and makes sure the bucket exists
func NewMinIOStore(ctx context.Context, cfg MinIOConfig, log *logger.Logger) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		log.Infof("Created storage bucket: %s", cfg.Bucket)
	}

	return &MinIOStore{client: client, bucket: cfg.Bucket, logger: log}, nil
}

// Put uploads data under a fresh key
func (s *MinIOStore) Put(ctx context.Context, prefix, filename, contentType string, data []byte) (string, error) {
	key := NewKey(prefix, filename)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{filenameMetaKey: SanitizeFilename(filename)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return key, nil
}

// Get downloads a blob
func (s *MinIOStore) Get(ctx context.Context, key string) (*Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapError(key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, s.mapError(key, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	filename := key[strings.LastIndex(key, "/")+1:]
	for k, v := range info.UserMetadata {
		if strings.EqualFold(k, filenameMetaKey) && v != "" {
			filename = v
		}
	}

	return &Object{
		Key:         key,
		Filename:    filename,
		ContentType: info.ContentType,
		Size:        info.Size,
		Data:        data,
	}, nil
}

// Delete removes a blob
func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return s.mapError(key, err)
	}
	return nil
}

// HealthCheck verifies the bucket is reachable
func (s *MinIOStore) HealthCheck(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("storage bucket %s does not exist", s.bucket)
	}
	return nil
}

func (s *MinIOStore) mapError(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return ErrNotFound
	}
	return fmt.Errorf("storage operation on %s failed: %w", key, err)
}
