package rules

import (
	"context"
	"sync"

	"github.com/atlasrisk/rulegate/pkg/catalog"
	"github.com/atlasrisk/rulegate/pkg/errdefs"
)

// InMemoryRepository is a map-backed Repository for tests and local mode.
type InMemoryRepository struct {
	mu              sync.RWMutex
	snapshots       map[string]Snapshot
	members         map[string][]RuleVersion // snapshot id -> members
	catalog         catalog.Catalog
	registryVersion string
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		snapshots: make(map[string]Snapshot),
		members:   make(map[string][]RuleVersion),
		catalog:   make(catalog.Catalog),
	}
}

// PutSnapshot registers a snapshot.
func (r *InMemoryRepository) PutSnapshot(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[s.ID] = s
}

// AttachRuleVersion attaches a rule version to a snapshot.
func (r *InMemoryRepository) AttachRuleVersion(snapshotID string, rv RuleVersion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[snapshotID] = append(r.members[snapshotID], rv)
}

// SetFieldCatalog replaces the field catalog and its registry version.
func (r *InMemoryRepository) SetFieldCatalog(cat catalog.Catalog, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog = cat
	r.registryVersion = version
}

func (r *InMemoryRepository) LoadRulesetVersion(ctx context.Context, id string) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.snapshots[id]
	if !ok {
		return nil, errdefs.NotFound("ruleset version %q not found", id)
	}
	return &s, nil
}

func (r *InMemoryRepository) LoadActiveRulesetVersion(ctx context.Context, rulesetID string) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.snapshots {
		if s.RulesetID == rulesetID && s.Status == StatusActive {
			snap := s
			return &snap, nil
		}
	}
	return nil, errdefs.NotFound("no active ruleset version for ruleset %q", rulesetID)
}

func (r *InMemoryRepository) LoadAttachedRuleVersions(ctx context.Context, snapshotID string) ([]RuleVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.members[snapshotID]
	out := make([]RuleVersion, len(members))
	copy(out, members)
	return out, nil
}

func (r *InMemoryRepository) LoadFieldCatalog(ctx context.Context) (catalog.Catalog, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(catalog.Catalog, len(r.catalog))
	for k, v := range r.catalog {
		out[k] = v
	}
	return out, r.registryVersion, nil
}
