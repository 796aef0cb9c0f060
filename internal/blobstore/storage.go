// Package blobstore wraps MinIO/S3 interactions for the raw uploads and
// extracted text artifacts the pipeline produces. Objects are addressed by
// content hash so re-uploading identical bytes never creates a duplicate.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/ingestkit/internal/config"
)

// Store wraps MinIO/S3 interactions for raw and extracted-text artifacts.
type Store struct {
	client     *minio.Client
	rawBucket  string
	textBucket string
	region     string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Store, error) {
	client, err := minio.New(cfg.BlobEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.BlobAccessKey, cfg.BlobSecretKey, ""),
		Secure: cfg.BlobUseSSL,
		Region: cfg.BlobRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Store{
		client:     client,
		rawBucket:  cfg.RawBucket,
		textBucket: cfg.TextBucket,
		region:     cfg.BlobRegion,
	}, nil
}

// EnsureBuckets makes sure the raw/text buckets exist before use.
func (s *Store) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.rawBucket, s.textBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// ContentKey derives the content-addressed object key for a blob of bytes:
// the raw and text buckets are both keyed by sha256 hex digest, so repeated
// uploads of identical content collapse onto the same object.
func ContentKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// UploadRaw uploads the original file bytes into the raw bucket under their
// content hash, returning the key it was stored at.
func (s *Store) UploadRaw(ctx context.Context, data []byte, contentType string) (string, error) {
	key := ContentKey(data)
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := s.client.PutObject(ctx, s.rawBucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return "", fmt.Errorf("upload raw object: %w", err)
	}
	return key, nil
}

// UploadText uploads extracted plain text into the text bucket, keyed by its
// own content hash (independent of the raw object's key).
func (s *Store) UploadText(ctx context.Context, data []byte) (string, error) {
	key := ContentKey(data)
	opts := minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"}
	_, err := s.client.PutObject(ctx, s.textBucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return "", fmt.Errorf("upload text object: %w", err)
	}
	return key, nil
}

// DownloadRaw fetches the raw file bytes from storage.
func (s *Store) DownloadRaw(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.rawBucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get raw object: %w", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read raw object: %w", err)
	}
	return buf, nil
}

// DownloadText fetches extracted text bytes from storage.
func (s *Store) DownloadText(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.textBucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get text object: %w", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read text object: %w", err)
	}
	return buf, nil
}

// PresignRawURL returns a signed GET URL for the original uploaded file.
func (s *Store) PresignRawURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.rawBucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign raw object: %w", err)
	}
	return u.String(), nil
}

// PresignTextURL returns a signed GET URL for the extracted text artifact.
func (s *Store) PresignTextURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.textBucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign text object: %w", err)
	}
	return u.String(), nil
}

// ListRawKeys lists every object key currently stored in the raw bucket.
func (s *Store) ListRawKeys(ctx context.Context) ([]string, error) {
	return s.listKeys(ctx, s.rawBucket)
}

// ListTextKeys lists every object key currently stored in the text bucket.
func (s *Store) ListTextKeys(ctx context.Context) ([]string, error) {
	return s.listKeys(ctx, s.textBucket)
}

func (s *Store) listKeys(ctx context.Context, bucket string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects in %s: %w", bucket, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// DeleteRaw removes an object from the raw bucket.
func (s *Store) DeleteRaw(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.rawBucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove raw object %s: %w", key, err)
	}
	return nil
}

// DeleteText removes an object from the text bucket.
func (s *Store) DeleteText(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.textBucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove text object %s: %w", key, err)
	}
	return nil
}
