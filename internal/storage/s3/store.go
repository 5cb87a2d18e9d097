// Package s3 keeps evaluation artifacts, published embedding files and
// remote schema descriptions in an S3-compatible bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode"

	"github.com/sqlrag/sqlrag/internal/config"
	"github.com/sqlrag/sqlrag/internal/storage"
)

// bucketAPI is the slice of the object API the store needs. The minio
// adapter in minio.go is the production implementation.
type bucketAPI interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucket, key string) (storage.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, key string) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket, region string) error
}

type Store struct {
	api    bucketAPI
	bucket string
	prefix string
}

// New connects to cfg.Endpoint. Keys handed to the store are relative to
// cfg.Prefix inside cfg.Bucket, so several environments can share a bucket.
func New(ctx context.Context, cfg config.ObjectStoreConfig) (*Store, error) {
	api, err := dialMinio(cfg)
	if err != nil {
		return nil, err
	}
	store, err := newStore(api, cfg.Bucket, cfg.Prefix)
	if err != nil {
		return nil, err
	}
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(api bucketAPI, bucket, prefix string) (*Store, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix != "" {
		cleaned, err := cleanKey(prefix)
		if err != nil {
			return nil, fmt.Errorf("s3 prefix: %w", err)
		}
		prefix = cleaned
	}
	return &Store{api: api, bucket: bucket, prefix: prefix}, nil
}

// Check verifies that the bucket is reachable. The API server uses it as a
// readiness probe.
func (s *Store) Check(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	full, err := s.objectKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if opts.ContentType == "" {
		opts.ContentType = storage.ContentTypeFor(full)
	}
	info, err := s.api.PutObject(ctx, s.bucket, full, body, size, opts)
	if err != nil {
		return storage.ObjectInfo{}, s.wrap("put", full, err)
	}
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	full, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	body, err := s.api.GetObject(ctx, s.bucket, full)
	if err != nil {
		return nil, s.wrap("get", full, err)
	}
	return body, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	full, err := s.objectKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.api.StatObject(ctx, s.bucket, full)
	if err != nil {
		return storage.ObjectInfo{}, s.wrap("stat", full, err)
	}
	return info, nil
}

// Delete is idempotent: removing a missing object succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	full, err := s.objectKey(key)
	if err != nil {
		return err
	}
	if err := s.api.RemoveObject(ctx, s.bucket, full); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return s.wrap("delete", full, err)
	}
	return nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.api.MakeBucket(ctx, s.bucket, region); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) objectKey(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return cleaned, nil
	}
	return s.prefix + "/" + cleaned, nil
}

// wrap keeps ErrObjectNotFound matchable while naming the object.
func (s *Store) wrap(op, key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("%w: s3://%s/%s", storage.ErrObjectNotFound, s.bucket, key)
	}
	return fmt.Errorf("%s s3://%s/%s: %w", op, s.bucket, key, err)
}

// cleanKey rejects keys that would escape the prefix or that S3 tooling
// handles badly.
func cleanKey(key string) (string, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", errors.New("object key is required")
	}
	if strings.ContainsRune(trimmed, '\\') || strings.IndexFunc(trimmed, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", fmt.Errorf("object key %q escapes its prefix", key)
		}
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return cleaned, nil
}

var _ storage.ObjectStore = (*Store)(nil)
