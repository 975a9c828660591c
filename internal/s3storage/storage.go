package s3storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/ClipScribe/internal/config"
	"github.com/dharsanguruparan/ClipScribe/internal/model"
)

// Storage wraps MinIO/S3 interactions for video objects. It issues presigned
// URLs and checks object existence; ownership checks belong to the caller.
type Storage struct {
	client *minio.Client
	bucket string
	region string
	ttl    time.Duration
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client: client,
		bucket: cfg.VideoBucket,
		region: cfg.S3Region,
		ttl:    cfg.PresignTTL,
	}, nil
}

// Bucket returns the configured video bucket name.
func (s *Storage) Bucket() string { return s.bucket }

// EnsureBucket makes sure the video bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// PresignUpload returns a signed PUT URL bound to the given content type. The
// provider rejects the URL after the configured TTL; no local write happens.
func (s *Storage) PresignUpload(ctx context.Context, objectKey, contentType string) (string, time.Time, error) {
	headers := http.Header{}
	if contentType != "" {
		headers.Set("Content-Type", contentType)
	}
	u, err := s.client.PresignHeader(ctx, http.MethodPut, s.bucket, objectKey, s.ttl, url.Values{}, headers)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign upload: %v: %w", err, model.ErrStorageUnavailable)
	}
	return u.String(), time.Now().Add(s.ttl), nil
}

// PresignDownload returns a signed GET URL. Callers must verify ownership of
// the key first.
func (s *Storage) PresignDownload(ctx context.Context, objectKey string) (string, time.Time, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, s.ttl, url.Values{})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign download: %v: %w", err, model.ErrStorageUnavailable)
	}
	return u.String(), time.Now().Add(s.ttl), nil
}

// Exists reports whether the object is present. A missing key is (false, nil);
// transport or auth failures surface as ErrStorageUnavailable so they are
// never conflated with "not uploaded yet".
func (s *Storage) Exists(ctx context.Context, objectKey string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, objectKey, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("stat object: %v: %w", err, model.ErrStorageUnavailable)
}

// UploadFile stores a local artifact (the captioned render) under objectKey.
func (s *Storage) UploadFile(ctx context.Context, objectKey, filePath, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.FPutObject(ctx, s.bucket, objectKey, filePath, opts); err != nil {
		return fmt.Errorf("upload object: %v: %w", err, model.ErrStorageUnavailable)
	}
	return nil
}
