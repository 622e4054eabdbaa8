package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasrisk/rulegate/pkg/artifacts"
	"github.com/atlasrisk/rulegate/pkg/canonical"
	"github.com/atlasrisk/rulegate/pkg/catalog"
	"github.com/atlasrisk/rulegate/pkg/compiler"
	"github.com/atlasrisk/rulegate/pkg/errdefs"
	"github.com/atlasrisk/rulegate/pkg/manifest"
	"github.com/atlasrisk/rulegate/pkg/rules"
)

// fakeStore records call order and supports failure injection. All calls
// also land in callsSink so tests can interleave them with manifest calls.
type fakeStore struct {
	artifacts    map[string][]byte
	pointers     map[string][]byte
	calls        []string
	callsSink    *[]string
	failArtifact bool
	failPointer  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		artifacts: make(map[string][]byte),
		pointers:  make(map[string][]byte),
	}
}

func (s *fakeStore) record(call string) {
	s.calls = append(s.calls, call)
	if s.callsSink != nil {
		*s.callsSink = append(*s.callsSink, call)
	}
}

func (s *fakeStore) PutArtifact(_ context.Context, coords artifacts.Coordinates, data []byte) (string, error) {
	s.record("put_artifact")
	if s.failArtifact {
		return "", errdefs.Storage("artifact upload failed", errors.New("bucket unavailable"))
	}
	s.artifacts[coords.ArtifactKey()] = data
	return "mem://" + coords.ArtifactKey(), nil
}

func (s *fakeStore) GetArtifact(_ context.Context, coords artifacts.Coordinates) ([]byte, error) {
	data, ok := s.artifacts[coords.ArtifactKey()]
	if !ok {
		return nil, errdefs.NotFound("artifact not found at %s", coords.ArtifactKey())
	}
	return data, nil
}

func (s *fakeStore) WritePointer(_ context.Context, coords artifacts.Coordinates, data []byte) (string, error) {
	s.record("write_pointer")
	if s.failPointer {
		return "", errdefs.Storage("pointer write failed", errors.New("bucket unavailable"))
	}
	s.pointers[coords.PointerKey()] = data
	return "mem://" + coords.PointerKey(), nil
}

func (s *fakeStore) GetPointer(_ context.Context, coords artifacts.Coordinates) ([]byte, error) {
	data, ok := s.pointers[coords.PointerKey()]
	if !ok {
		return nil, errdefs.NotFound("runtime pointer not found at %s", coords.PointerKey())
	}
	return data, nil
}

// recordingManifests wraps the in-memory store to capture call order.
type recordingManifests struct {
	*manifest.InMemoryStore
	calls *[]string
}

func (m recordingManifests) Insert(ctx context.Context, r manifest.Record) error {
	*m.calls = append(*m.calls, "insert_manifest")
	return m.InMemoryStore.Insert(ctx, r)
}

type conflictLock struct{}

func (conflictLock) Acquire(context.Context, manifest.Partition) (func(context.Context), error) {
	return nil, errdefs.Conflict("another publish is in progress")
}

func compiledSet(t *testing.T, ruleType rules.RuleType) (*compiler.CompiledRuleSet, *rules.Snapshot) {
	t.Helper()
	repo := rules.NewInMemoryRepository()
	repo.SetFieldCatalog(catalog.Catalog{
		"amount": {
			Key:              "amount",
			DataType:         catalog.TypeNumber,
			AllowedOperators: []catalog.Operator{catalog.OpGT},
			IsActive:         true,
		},
	}, "fields-v3")
	repo.PutSnapshot(rules.Snapshot{
		ID:                   "rsv-1",
		RulesetID:            "rs-1",
		RulesetKey:           "card-monitoring-se",
		Version:              3,
		Status:               rules.StatusActive,
		RuleType:             ruleType,
		Environment:          "production",
		Region:               "EU",
		Country:              "SE",
		FieldRegistryVersion: "fields-v3",
	})
	repo.AttachRuleVersion("rsv-1", rules.RuleVersion{
		ID:            "rv-1",
		RuleID:        "rule-1",
		Status:        rules.StatusApproved,
		Priority:      100,
		Scope:         json.RawMessage(`{}`),
		ConditionTree: json.RawMessage(`{"field":"amount","op":"GT","value":3000}`),
		Action:        rules.ActionReview,
	})

	set, snap, err := compiler.New(repo, nil).Compile(context.Background(), "rs-1", "")
	require.NoError(t, err)
	return set, snap
}

func newTestPublisher(t *testing.T, store artifacts.Store, manifests manifest.Store, lock PartitionLock) *Publisher {
	t.Helper()
	p, err := New(store, manifests, lock)
	require.NoError(t, err)
	return p
}

func TestPublish_HappyPath(t *testing.T) {
	set, snap := compiledSet(t, rules.TypeMonitoring)
	store := newFakeStore()
	var calls []string
	manifests := recordingManifests{manifest.NewInMemoryStore(), &calls}
	store.callsSink = &calls

	p := newTestPublisher(t, store, manifests, nil)
	record, err := p.Publish(context.Background(), snap, set, "risk-ops@example.com")
	require.NoError(t, err)

	// The crash-safety contract: artifact, then manifest, then pointer.
	assert.Equal(t, []string{"put_artifact", "insert_manifest", "write_pointer"}, calls)

	assert.Equal(t, 1, record.RuntimeVersion)
	assert.Equal(t, "rsv-1", record.RulesetVersionID)
	assert.Equal(t, "risk-ops@example.com", record.CreatedBy)
	assert.Equal(t, "mem://production/SE/CARD_MONITORING/v1/ruleset.json", record.ArtifactURI)

	astBytes, err := set.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, canonical.ChecksumBytes(astBytes), record.Checksum)
	assert.Len(t, record.Checksum, 71)

	stored := store.artifacts["production/SE/CARD_MONITORING/v1/ruleset.json"]
	assert.Equal(t, astBytes, stored)
}

func TestPublish_PointerDocument(t *testing.T) {
	set, snap := compiledSet(t, rules.TypeMonitoring)
	store := newFakeStore()

	p := newTestPublisher(t, store, manifest.NewInMemoryStore(), nil)
	record, err := p.Publish(context.Background(), snap, set, "risk-ops@example.com")
	require.NoError(t, err)

	var pointer Pointer
	require.NoError(t, json.Unmarshal(store.pointers["production/SE/CARD_MONITORING/current.json"], &pointer))
	assert.Equal(t, PointerSchemaVersion, pointer.SchemaVersion)
	assert.Equal(t, "production", pointer.Environment)
	assert.Equal(t, "EU", pointer.Region)
	assert.Equal(t, "SE", pointer.Country)
	assert.Equal(t, "card-monitoring-se", pointer.RulesetKey)
	assert.Equal(t, 1, pointer.RulesetVersion)
	assert.Equal(t, record.ArtifactURI, pointer.ArtifactURI)
	assert.Equal(t, record.Checksum, pointer.Checksum)
	assert.True(t, strings.HasSuffix(pointer.PublishedAt, "Z"))
	assert.Equal(t, "fields-v3", pointer.FieldRegistryVersion)
}

func TestPublish_UploadFailureLeavesNoGovernanceState(t *testing.T) {
	set, snap := compiledSet(t, rules.TypeMonitoring)
	store := newFakeStore()
	store.failArtifact = true
	manifests := manifest.NewInMemoryStore()

	p := newTestPublisher(t, store, manifests, nil)
	_, err := p.Publish(context.Background(), snap, set, "risk-ops@example.com")
	require.True(t, errdefs.IsKind(err, errdefs.KindStorage))

	assert.Empty(t, manifests.Records(), "no manifest row may exist after a failed upload")
	assert.Empty(t, store.pointers, "the runtime pointer must be unchanged after a failed upload")
}

func TestPublish_PointerFailureKeepsManifestRow(t *testing.T) {
	set, snap := compiledSet(t, rules.TypeMonitoring)
	store := newFakeStore()
	store.failPointer = true
	manifests := manifest.NewInMemoryStore()

	p := newTestPublisher(t, store, manifests, nil)
	_, err := p.Publish(context.Background(), snap, set, "risk-ops@example.com")
	require.True(t, errdefs.IsKind(err, errdefs.KindStorage))

	// The row records a real, durable artifact that never became active;
	// the next publish supersedes it.
	assert.Len(t, manifests.Records(), 1)
	assert.Empty(t, store.pointers)
}

func TestPublish_RestrictedToRuntimeTypes(t *testing.T) {
	for _, ruleType := range []rules.RuleType{rules.TypeAllowlist, rules.TypeBlocklist} {
		t.Run(string(ruleType), func(t *testing.T) {
			set, snap := compiledSet(t, ruleType)
			store := newFakeStore()

			p := newTestPublisher(t, store, manifest.NewInMemoryStore(), nil)
			_, err := p.Publish(context.Background(), snap, set, "risk-ops@example.com")
			assert.True(t, errdefs.IsKind(err, errdefs.KindValidation))
			assert.Empty(t, store.calls, "no storage side effects for unsupported rule types")
		})
	}
}

func TestPublish_MonotonicVersions(t *testing.T) {
	set, snap := compiledSet(t, rules.TypeMonitoring)
	store := newFakeStore()
	manifests := manifest.NewInMemoryStore()

	p := newTestPublisher(t, store, manifests, nil)
	first, err := p.Publish(context.Background(), snap, set, "risk-ops@example.com")
	require.NoError(t, err)
	second, err := p.Publish(context.Background(), snap, set, "risk-ops@example.com")
	require.NoError(t, err)

	assert.Equal(t, 1, first.RuntimeVersion)
	assert.Equal(t, 2, second.RuntimeVersion)
	// Re-publishing the same snapshot is idempotent at the content level.
	assert.Equal(t, first.Checksum, second.Checksum)

	var pointer Pointer
	require.NoError(t, json.Unmarshal(store.pointers["production/SE/CARD_MONITORING/current.json"], &pointer))
	assert.Equal(t, 2, pointer.RulesetVersion)
}

func TestPublish_LockContentionIsConflict(t *testing.T) {
	set, snap := compiledSet(t, rules.TypeMonitoring)
	store := newFakeStore()

	p := newTestPublisher(t, store, manifest.NewInMemoryStore(), conflictLock{})
	_, err := p.Publish(context.Background(), snap, set, "risk-ops@example.com")
	assert.True(t, errdefs.IsKind(err, errdefs.KindConflict))
	assert.Empty(t, store.calls, "lock contention must be reported before any side effect")
}

func TestPublish_RefusesSchemaDowngrade(t *testing.T) {
	set, snap := compiledSet(t, rules.TypeMonitoring)
	store := newFakeStore()
	store.pointers["production/SE/CARD_MONITORING/current.json"] = []byte(`{"schema_version":"2.0.0"}`)

	p := newTestPublisher(t, store, manifest.NewInMemoryStore(), nil)
	_, err := p.Publish(context.Background(), snap, set, "risk-ops@example.com")
	assert.True(t, errdefs.IsKind(err, errdefs.KindConflict))
	// The pointer written by the newer publisher survives untouched.
	assert.JSONEq(t, `{"schema_version":"2.0.0"}`,
		string(store.pointers["production/SE/CARD_MONITORING/current.json"]))
}

func TestPublish_ToleratesUnreadableExistingPointer(t *testing.T) {
	set, snap := compiledSet(t, rules.TypeMonitoring)
	store := newFakeStore()
	store.pointers["production/SE/CARD_MONITORING/current.json"] = []byte(`not json`)

	p := newTestPublisher(t, store, manifest.NewInMemoryStore(), nil)
	_, err := p.Publish(context.Background(), snap, set, "risk-ops@example.com")
	assert.NoError(t, err)
}
