package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Client abstracts the S3 API operations used by [BlobStore].
// The [s3.Client] type satisfies this interface.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// BlobStore archives original voice recordings in S3 or any S3-compatible
// object store (MinIO, R2, Azure via gateway). It stores the enrollment
// audio for audit and replay, independent of the embedding gallery.
type BlobStore struct {
	client  S3Client
	bucket  string
	prefix  string
	baseURL string
}

// NewBlobStore creates a blob store. The client should be pre-configured
// with credentials, region, and endpoint. Prefix is prepended to all object
// keys; pass "" for none. baseURL is the public root used to build the
// returned recording URLs.
func NewBlobStore(client S3Client, bucket, prefix, baseURL string) *BlobStore {
	return &BlobStore{client: client, bucket: bucket, prefix: prefix, baseURL: baseURL}
}

// key builds the full object key for the given storage path.
func (b *BlobStore) key(path string) string {
	if b.prefix == "" {
		return path
	}
	return b.prefix + "/" + path
}

// Upload stores the recording bytes under key and returns its URL.
func (b *BlobStore) Upload(ctx context.Context, data []byte, key string) (string, error) {
	fullKey := b.key(key)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(fullKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("audio/wav"),
	})
	if err != nil {
		return "", fmt.Errorf("storage: upload %s: %w", key, err)
	}
	return b.url(fullKey), nil
}

// Download retrieves the recording bytes stored under key.
// Returns an error wrapping os.ErrNotExist if the key does not exist.
func (b *BlobStore) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("storage: download %s: %w", key, os.ErrNotExist)
		}
		return nil, fmt.Errorf("storage: download %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return data, nil
}

// Exists checks whether the named object exists via HeadObject.
func (b *BlobStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *BlobStore) url(fullKey string) string {
	if b.baseURL != "" {
		return b.baseURL + "/" + fullKey
	}
	return fmt.Sprintf("s3://%s/%s", b.bucket, fullKey)
}

// isS3NotFound reports whether err indicates the object does not exist.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
