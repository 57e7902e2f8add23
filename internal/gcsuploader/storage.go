package gcsuploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// ErrObjectExists is returned by ObjectStore.Write when the object is
// already present.
var ErrObjectExists = errors.New("object already exists")

// ObjectStore reads and writes whole objects in a bucket.
type ObjectStore interface {
	// Write creates bucket/object with data. It never overwrites: an
	// existing object yields ErrObjectExists.
	Write(ctx context.Context, bucket, object string, data []byte, contentType string) error

	// Read returns the bytes of bucket/object.
	Read(ctx context.Context, bucket, object string) ([]byte, error)
}

// GCSStore implements ObjectStore on Google Cloud Storage. It holds a
// shared client; Application Default Credentials are assumed.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore creates a GCSStore with a new storage client.
func NewGCSStore(ctx context.Context) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

// Close closes the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Write implements ObjectStore.
func (s *GCSStore) Write(ctx context.Context, bucket, object string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	obj := s.client.Bucket(bucket).Object(object).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s/%s: %w", bucket, object, err)
	}

	// Close finalizes the upload and reports precondition failures.
	if err := w.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return ErrObjectExists
		}
		return fmt.Errorf("finalize upload %s/%s: %w", bucket, object, err)
	}
	return nil
}

// Read implements ObjectStore.
func (s *GCSStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	return data, nil
}
