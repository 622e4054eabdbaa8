package manifest

import (
	"context"
	"sync"

	"github.com/atlasrisk/rulegate/pkg/errdefs"
)

// InMemoryStore is a map-backed Store for tests and local mode. It mirrors
// the SQL store's unique-version constraint so races surface the same way.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) NextVersion(ctx context.Context, p Partition) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	max := 0
	for _, r := range s.records {
		if r.Partition() == p && r.RuntimeVersion > max {
			max = r.RuntimeVersion
		}
	}
	return max + 1, nil
}

func (s *InMemoryStore) Insert(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.records {
		if existing.Partition() == r.Partition() && existing.RuntimeVersion == r.RuntimeVersion {
			return errdefs.Persistence("insert publication manifest failed",
				errdefs.Conflict("runtime version %d already recorded for partition", r.RuntimeVersion))
		}
	}
	s.records = append(s.records, r)
	return nil
}

// Records returns a copy of all rows, in insertion order.
func (s *InMemoryStore) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}
