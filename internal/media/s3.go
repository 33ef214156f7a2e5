package media

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

	"github.com/skillswap/backend/internal/config"
)

// Uploader is the subset of the S3 upload manager used by S3Backend.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// ObjectDeleter is the subset of the S3 client used to remove objects.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Backend stores media in an S3-compatible bucket.
type S3Backend struct {
	uploader Uploader
	deleter  ObjectDeleter
	bucket   string
	baseURL  string
}

// NewS3Backend configures an uploader targeting the provided object store.
func NewS3Backend(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Backend, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 backend: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	return NewS3BackendWithUploader(uploader, cfg.Bucket, cfg.PublicBaseURL).WithDeleter(client), nil
}

// NewS3BackendWithUploader wires a backend around an existing uploader.
func NewS3BackendWithUploader(uploader Uploader, bucket, publicBaseURL string) *S3Backend {
	return &S3Backend{
		uploader: uploader,
		bucket:   bucket,
		baseURL:  strings.TrimSuffix(publicBaseURL, "/"),
	}
}

// WithDeleter enables Delete using d.
func (s *S3Backend) WithDeleter(d ObjectDeleter) *S3Backend {
	s.deleter = d
	return s
}

// Delete removes key from the bucket.
func (s *S3Backend) Delete(ctx context.Context, key string) error {
	if s.deleter == nil {
		return ErrNotRemovable
	}
	key = strings.TrimLeft(key, "/")
	if _, err := s.deleter.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("s3 backend delete %s: %w", key, err)
	}
	return nil
}

// Put uploads body to the bucket and returns its public location.
func (s *S3Backend) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", fmt.Errorf("s3 backend: empty key")
	}

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		ACL:         s3types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("s3 backend upload %s: %w", key, err)
	}

	if s.baseURL == "" {
		if out != nil && out.Location != "" {
			return out.Location, nil
		}
		return key, nil
	}
	return fmt.Sprintf("%s/%s", s.baseURL, key), nil
}
