package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/streamsafe/backend/internal/config"
	"github.com/streamsafe/backend/internal/metrics"
	"github.com/streamsafe/backend/internal/videos"
)

type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type objectDeleter interface {
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage implements videos.BlobStore backed by an S3-compatible service.
// The blob id is the object key.
type S3Storage struct {
	uploader objectUploader
	deleter  objectDeleter
	bucket   string
	baseURL  string
}

// NewS3Storage configures an uploader targeting the provided object store.
func NewS3Storage(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Storage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	return newS3Storage(uploader, client, cfg.Bucket, cfg.PublicBaseURL), nil
}

func newS3Storage(uploader objectUploader, deleter objectDeleter, bucket, baseURL string) *S3Storage {
	return &S3Storage{
		uploader: uploader,
		deleter:  deleter,
		bucket:   bucket,
		baseURL:  strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
	}
}

// Upload stores body under key and returns the object key with a durable URL.
func (s *S3Storage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (videos.Blob, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return videos.Blob{}, fmt.Errorf("s3 storage: empty key")
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		ACL:         s3types.ObjectCannedACLPublicRead,
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}

	out, err := s.uploader.Upload(ctx, input)
	metrics.RecordBlobOperation("upload", err)
	if err != nil {
		return videos.Blob{}, fmt.Errorf("s3 storage upload %s: %w", key, err)
	}

	return videos.Blob{ID: key, URL: s.location(key, out)}, nil
}

// Delete removes the object with the given key.
func (s *S3Storage) Delete(ctx context.Context, id string) error {
	key := strings.TrimLeft(id, "/")
	if key == "" {
		return fmt.Errorf("s3 storage: empty key")
	}

	_, err := s.deleter.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	metrics.RecordBlobOperation("delete", err)
	if err != nil {
		return fmt.Errorf("s3 storage delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Storage) location(key string, out *manager.UploadOutput) string {
	if s.baseURL != "" {
		return fmt.Sprintf("%s/%s", s.baseURL, key)
	}
	if out != nil && out.Location != "" {
		return out.Location
	}
	return key
}

var _ videos.BlobStore = (*S3Storage)(nil)
