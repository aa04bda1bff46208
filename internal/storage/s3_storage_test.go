package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"quicktexts/engine/internal/config"
)

func testStorage() *s3Storage {
	return &s3Storage{
		cfg: &config.Config{
			AwsS3Bucket:         "qt-attachments",
			AwsRegion:           "eu-west-1",
			AttachmentMaxSizeMB: 3,
		},
		maxBytes: 3 * 1024 * 1024,
	}
}

func TestUpload_RejectsOversizedAttachment(t *testing.T) {
	s := testStorage()

	_, err := s.Upload(context.Background(), "huge.pdf", bytes.Repeat([]byte{0}, 3*1024*1024+1))

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr), "expected a ValidationError, got %v", err)
	assert.Contains(t, verr.Reason, "3MB")
}

func TestUpload_RejectsUnnamedAttachment(t *testing.T) {
	s := testStorage()

	_, err := s.Upload(context.Background(), "", []byte("data"))

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestObjectKey_URLMapping(t *testing.T) {
	s := testStorage()

	url := s.publicURL("attachments/abc.png")
	assert.Equal(t, "https://qt-attachments.s3.eu-west-1.amazonaws.com/attachments/abc.png", url)

	key, ok := s.objectKey(url)
	assert.True(t, ok)
	assert.Equal(t, "attachments/abc.png", key)

	// Foreign URLs are not ours to delete.
	_, ok = s.objectKey("https://elsewhere.example.com/file.png")
	assert.False(t, ok)
}

func TestObjectKey_CustomBaseURL(t *testing.T) {
	s := testStorage()
	s.cfg.AttachmentBaseS3URL = "https://cdn.example.com/"

	url := s.publicURL("attachments/abc.png")
	assert.Equal(t, "https://cdn.example.com/attachments/abc.png", url)

	key, ok := s.objectKey(url)
	assert.True(t, ok)
	assert.Equal(t, "attachments/abc.png", key)
}
