// Package storage puts uploaded media somewhere public and returns its URL.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crosspost/crosspost/pkg/config"
	"github.com/crosspost/crosspost/pkg/logging"
	"github.com/crosspost/crosspost/pkg/telemetry"
)

const folder = "social-cross-post"

// Store saves raw media and returns a stable public URL
type Store interface {
	Upload(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

// S3Store writes objects to one bucket
type S3Store struct {
	s3     s3iface.S3API
	bucket string
	logger *zap.Logger
}

// NewS3Store creates a store from configuration
func NewS3Store(cfg *config.StorageConfig) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3_bucket is required for media uploads")
	}
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.S3Region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewS3StoreWithClient(s3.New(sess), cfg.S3Bucket), nil
}

// NewS3StoreWithClient wraps an existing S3 client
func NewS3StoreWithClient(client s3iface.S3API, bucket string) *S3Store {
	return &S3Store{s3: client, bucket: bucket, logger: logging.WithComponent("storage")}
}

// Upload stores data under images/ or videos/ by content type
func (s *S3Store) Upload(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "storage.upload")
	defer span.End()

	key := ObjectKey(filename, contentType, uuid.NewString())
	_, err := s.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", filename, err)
	}

	s.logger.Debug("Media stored", zap.String("key", key), zap.Int("bytes", len(data)))
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key), nil
}

// ObjectKey builds the object path for an upload
func ObjectKey(filename, contentType, id string) string {
	kind := "images"
	if IsVideo(contentType) {
		kind = "videos"
	}
	return path.Join(folder, kind, id+strings.ToLower(path.Ext(filename)))
}

// IsVideo reports whether contentType names a video
func IsVideo(contentType string) bool {
	return strings.HasPrefix(contentType, "video/")
}

// IsImage reports whether contentType names an image
func IsImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}
