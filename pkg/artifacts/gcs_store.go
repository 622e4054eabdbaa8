//go:build gcp

package artifacts

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"

	"github.com/atlasrisk/rulegate/pkg/errdefs"
)

// GCSStore implements Store using Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore creates a new GCS-backed artifact store. The client uses
// application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errdefs.Storage("failed to create GCS client", err)
	}
	return &GCSStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *GCSStore) PutArtifact(ctx context.Context, coords Coordinates, data []byte) (string, error) {
	key := s.prefix + coords.ArtifactKey()
	uri := "gs://" + s.bucket + "/" + key

	// Idempotent: versioned keys are immutable.
	obj := s.client.Bucket(s.bucket).Object(key)
	if _, err := obj.Attrs(ctx); err == nil {
		return uri, nil
	}

	if err := s.put(ctx, key, data); err != nil {
		return "", err
	}
	return uri, nil
}

func (s *GCSStore) GetArtifact(ctx context.Context, coords Coordinates) ([]byte, error) {
	return s.get(ctx, s.prefix+coords.ArtifactKey(), "artifact")
}

func (s *GCSStore) WritePointer(ctx context.Context, coords Coordinates, data []byte) (string, error) {
	key := s.prefix + coords.PointerKey()
	if err := s.put(ctx, key, data); err != nil {
		return "", err
	}
	return "gs://" + s.bucket + "/" + key, nil
}

func (s *GCSStore) GetPointer(ctx context.Context, coords Coordinates) ([]byte, error) {
	return s.get(ctx, s.prefix+coords.PointerKey(), "runtime pointer")
}

func (s *GCSStore) put(ctx context.Context, key string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return errdefs.Storage("gcs write failed for "+key, err)
	}
	if err := w.Close(); err != nil {
		return errdefs.Storage("gcs close failed for "+key, err)
	}
	return nil
}

func (s *GCSStore) get(ctx context.Context, key, what string) ([]byte, error) {
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, errdefs.NotFound("%s not found at %s", what, key)
		}
		return nil, errdefs.Storage("gcs get failed for "+what+" at "+key, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errdefs.Storage("gcs read failed for "+what+" at "+key, err)
	}
	return data, nil
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
