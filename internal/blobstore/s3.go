package blobstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures the S3-compatible backend.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool
}

// S3 stores blob bytes in an S3-compatible bucket under the same
// content-addressed keys as LocalCAS.
type S3 struct {
	cl     *minio.Client
	bucket string
}

// NewS3 connects to the bucket, creating it when missing.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}
	cl, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, err
	}

	exists, err := cl.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cl.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &S3{cl: cl, bucket: cfg.Bucket}, nil
}

// Put uploads to a temporary object while hashing, then copies the object
// to its content-addressed key unless that key already exists.
func (s *S3) Put(ctx context.Context, r io.Reader) (BlobPutResult, error) {
	var zero BlobPutResult
	if s == nil || s.cl == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}

	dr := newDigestReader(r)
	tmpKey := "tmp/" + uuid.NewString()
	if _, err := s.cl.PutObject(ctx, s.bucket, tmpKey, dr, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	}); err != nil {
		return zero, err
	}
	defer func() {
		_ = s.cl.RemoveObject(context.WithoutCancel(ctx), s.bucket, tmpKey, minio.RemoveObjectOptions{})
	}()

	result := dr.result()
	key := result.BlobKey

	if _, err := s.cl.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err == nil {
		return result, nil
	} else if !isNoSuchKey(err) {
		return zero, err
	}

	src := minio.CopySrcOptions{Bucket: s.bucket, Object: tmpKey}
	dst := minio.CopyDestOptions{Bucket: s.bucket, Object: key}
	if _, err := s.cl.CopyObject(ctx, dst, src); err != nil {
		return zero, err
	}
	return result, nil
}

// Open returns a reader for blob key content.
func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if s == nil || s.cl == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("blob key is required")
	}
	if _, err := s.cl.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return s.cl.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
}

// Delete removes a blob object. Missing objects are ignored.
func (s *S3) Delete(ctx context.Context, key string) error {
	if s == nil || s.cl == nil {
		return fmt.Errorf("blob store is not configured")
	}
	err := s.cl.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return err
	}
	return nil
}

// Backend returns the backend name recorded on blob rows.
func (s *S3) Backend() string {
	return BackendS3
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

var _ BlobStore = (*S3)(nil)
