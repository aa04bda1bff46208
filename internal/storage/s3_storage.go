package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"quicktexts/engine/internal/config"
	"quicktexts/engine/internal/models"
)

// ValidationError marks an attachment that was rejected before upload.
// Callers treat it as a per-file failure rather than a storage outage.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IS3Storage defines the interface for attachment blob operations.
type IS3Storage interface {
	Upload(ctx context.Context, name string, data []byte) (models.Attachment, error)
	Remove(ctx context.Context, url string) error
}

// s3Storage implements IS3Storage.
type s3Storage struct {
	cfg      *config.Config
	s3Client *s3.Client
	maxBytes int64
}

// NewS3Storage creates a new S3 storage service.
func NewS3Storage(cfg *config.Config) (IS3Storage, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(context.TODO(),
		aws_config.WithRegion(cfg.AwsRegion),
		// Use static credentials from config for simplicity
		// For production, prefer IAM roles or other secure credential methods
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"", // session token
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &s3Storage{
		cfg:      cfg,
		s3Client: s3.NewFromConfig(awsCfg),
		maxBytes: int64(cfg.AttachmentMaxSizeMB) * 1024 * 1024,
	}, nil
}

// Upload stores one attachment blob under a fresh uuid key and returns its
// public handle. The display name travels as object metadata; the key never
// embeds it since filenames are user-controlled.
func (s *s3Storage) Upload(ctx context.Context, name string, data []byte) (models.Attachment, error) {
	if name == "" {
		return models.Attachment{}, &ValidationError{Reason: "attachment has no name"}
	}
	if int64(len(data)) > s.maxBytes {
		return models.Attachment{}, &ValidationError{
			Reason: fmt.Sprintf("attachment %s exceeds %dMB", name, s.cfg.AttachmentMaxSizeMB),
		}
	}

	objectKey := fmt.Sprintf("attachments/%s%s", uuid.NewString(), path.Ext(name))

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.cfg.AwsS3Bucket),
		Key:      aws.String(objectKey),
		Body:     bytes.NewReader(data),
		Metadata: map[string]string{"public_name": name},
	})
	if err != nil {
		return models.Attachment{}, fmt.Errorf("failed to upload attachment %s: %w", name, err)
	}

	return models.Attachment{
		URL:  s.publicURL(objectKey),
		Name: name,
	}, nil
}

// Remove deletes the blob behind a public URL. URLs outside our base are
// ignored: templates imported from elsewhere may reference foreign hosts.
func (s *s3Storage) Remove(ctx context.Context, url string) error {
	key, ok := s.objectKey(url)
	if !ok {
		return nil
	}
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.AwsS3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete attachment object %s: %w", key, err)
	}
	return nil
}

func (s *s3Storage) publicURL(objectKey string) string {
	base := strings.TrimSuffix(s.cfg.AttachmentBaseS3URL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", s.cfg.AwsS3Bucket, s.cfg.AwsRegion)
	}
	return base + "/" + objectKey
}

func (s *s3Storage) objectKey(url string) (string, bool) {
	base := strings.TrimSuffix(s.cfg.AttachmentBaseS3URL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", s.cfg.AwsS3Bucket, s.cfg.AwsRegion)
	}
	if !strings.HasPrefix(url, base+"/") {
		return "", false
	}
	return strings.TrimPrefix(url, base+"/"), true
}
