// Package artifacts provides the pluggable storage backends compiled
// rule-set artifacts are published to: a local filesystem store, an
// S3-compatible object store, and (behind the gcp build tag) Google Cloud
// Storage. All backends expose the same contract and failure semantics:
// immutable, idempotent artifact writes at versioned keys, and an
// overwrite-in-place runtime pointer per partition.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/atlasrisk/rulegate/pkg/errdefs"
)

// Coordinates locate one runtime partition, and (for artifact writes) the
// version within it.
type Coordinates struct {
	Environment  string
	Country      string
	PartitionKey string
	Version      int
}

// ArtifactKey is the versioned, immutable artifact location.
func (c Coordinates) ArtifactKey() string {
	return fmt.Sprintf("%s/%s/%s/v%d/ruleset.json", c.Environment, c.Country, c.PartitionKey, c.Version)
}

// PointerKey is the fixed location of the partition's runtime pointer,
// the only mutable object in the system. The runtime engine polls it.
func (c Coordinates) PointerKey() string {
	return fmt.Sprintf("%s/%s/%s/current.json", c.Environment, c.Country, c.PartitionKey)
}

// Store is the storage backend contract.
type Store interface {
	// PutArtifact persists immutable artifact bytes at the coordinates'
	// versioned key and returns the artifact URI. Writing the same key
	// twice is idempotent. An artifact with no matching manifest row is
	// harmless and must be tolerated.
	PutArtifact(ctx context.Context, coords Coordinates, data []byte) (string, error)

	// GetArtifact retrieves artifact bytes by coordinates.
	GetArtifact(ctx context.Context, coords Coordinates) ([]byte, error)

	// WritePointer overwrites the partition's runtime pointer in place and
	// returns the pointer URI.
	WritePointer(ctx context.Context, coords Coordinates, data []byte) (string, error)

	// GetPointer reads the partition's current runtime pointer, NotFound
	// if the partition has never been published.
	GetPointer(ctx context.Context, coords Coordinates) ([]byte, error)
}

// FileStore is a filesystem-backed implementation of Store.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	//nolint:gosec // G301: 0755 is intentional for shared artifact directory
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, errdefs.Storage("failed to ensure artifact dir", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) PutArtifact(ctx context.Context, coords Coordinates, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.baseDir, filepath.FromSlash(coords.ArtifactKey()))

	// Idempotent: the key is versioned, the content immutable.
	if _, err := os.Stat(path); err == nil {
		return "file://" + path, nil
	}

	if err := s.writeAtomic(path, data); err != nil {
		return "", err
	}
	return "file://" + path, nil
}

func (s *FileStore) GetArtifact(ctx context.Context, coords Coordinates) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(filepath.FromSlash(coords.ArtifactKey()), "artifact")
}

func (s *FileStore) WritePointer(ctx context.Context, coords Coordinates, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.baseDir, filepath.FromSlash(coords.PointerKey()))
	if err := s.writeAtomic(path, data); err != nil {
		return "", err
	}
	return "file://" + path, nil
}

func (s *FileStore) GetPointer(ctx context.Context, coords Coordinates) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(filepath.FromSlash(coords.PointerKey()), "runtime pointer")
}

// writeAtomic writes via a temp file and rename so readers never observe
// a partially-written document.
func (s *FileStore) writeAtomic(path string, data []byte) error {
	//nolint:gosec // G301: 0755 is intentional for shared artifact directory
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errdefs.Storage("failed to ensure artifact dir", err)
	}

	tmpPath := path + ".tmp"
	//nolint:gosec // G306: 0644 is intentional for readable artifact files
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return errdefs.Storage("failed to write artifact", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errdefs.Storage("failed to commit artifact", err)
	}
	return nil
}

func (s *FileStore) read(key, what string) ([]byte, error) {
	path := filepath.Join(s.baseDir, key)
	data, err := os.ReadFile(path) //nolint:gosec // key derived from partition coordinates
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errdefs.NotFound("%s not found at %s", what, key)
		}
		return nil, errdefs.Storage("failed to read "+what, err)
	}
	return data, nil
}
