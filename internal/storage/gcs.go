package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSStore reads objects from one Cloud Storage bucket.
type GCSStore struct {
	client   *storage.Client
	bucket   string
	maxBytes int64
}

// NewGCSStore creates a store for bucket. maxBytes <= 0 disables the size limit.
func NewGCSStore(client *storage.Client, bucket string, maxBytes int64) *GCSStore {
	return &GCSStore{client: client, bucket: bucket, maxBytes: maxBytes}
}

// Fetch downloads the object at path.
func (s *GCSStore) Fetch(ctx context.Context, path string) ([]byte, error) {
	name := strings.TrimPrefix(path, "/")
	if name == "" {
		return nil, ErrInvalidPath
	}

	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gs://%s/%s: %w", s.bucket, name, ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	data, err := readLimited(r, s.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("read GCS object gs://%s/%s: %w", s.bucket, name, err)
	}
	return data, nil
}

// Close closes the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
