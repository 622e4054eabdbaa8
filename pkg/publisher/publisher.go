// Package publisher maps a compiled AST to its runtime partition, computes
// the content checksum, and publishes it in the strict, crash-safe order:
// immutable artifact upload, then the governance manifest row, then the
// mutable runtime pointer. Each step proceeds only if the previous one
// succeeded, so the runtime engine, which reads only the pointer, never
// observes an artifact that governance state does not record.
package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atlasrisk/rulegate/pkg/artifacts"
	"github.com/atlasrisk/rulegate/pkg/canonical"
	"github.com/atlasrisk/rulegate/pkg/compiler"
	"github.com/atlasrisk/rulegate/pkg/errdefs"
	"github.com/atlasrisk/rulegate/pkg/manifest"
	"github.com/atlasrisk/rulegate/pkg/rules"
)

// runtimePartitions maps governance rule types to the runtime partition
// keys the decision engine consumes. Publication is intentionally
// restricted to these two types.
var runtimePartitions = map[rules.RuleType]string{
	rules.TypeAuth:       "CARD_AUTH",
	rules.TypeMonitoring: "CARD_MONITORING",
}

// Publisher persists compiled artifacts and their governance records.
type Publisher struct {
	store     artifacts.Store
	manifests manifest.Store
	lock      PartitionLock // optional
	schema    *jsonschema.Schema
	logger    *slog.Logger

	now   func() time.Time
	newID func() string
}

// New creates a Publisher. lock may be nil, in which case concurrent
// publish protection is delegated entirely to the manifest store's unique
// version constraint.
func New(store artifacts.Store, manifests manifest.Store, lock PartitionLock) (*Publisher, error) {
	schema, err := compilePointerSchema()
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindValidation, "runtime pointer schema compile failed", err)
	}
	return &Publisher{
		store:     store,
		manifests: manifests,
		lock:      lock,
		schema:    schema,
		logger:    slog.Default().With("component", "publisher"),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}, nil
}

// Publish serializes the compiled AST, uploads it, records the manifest
// row, and flips the runtime pointer, in that order. It does not retry:
// re-invoking the whole pipeline is idempotent at the content-hash level.
// A failure before the manifest insert leaves at most an orphaned artifact,
// which is harmless.
func (p *Publisher) Publish(ctx context.Context, snap *rules.Snapshot, ast *compiler.CompiledRuleSet, actor string) (*manifest.Record, error) {
	partitionKey, ok := runtimePartitions[snap.RuleType]
	if !ok {
		return nil, errdefs.Validation("rule type %q is not published to a runtime partition", snap.RuleType).
			WithDetail("rule_type", string(snap.RuleType)).
			WithDetail("publishable", []string{string(rules.TypeAuth), string(rules.TypeMonitoring)})
	}

	partition := manifest.Partition{
		Environment: snap.Environment,
		Region:      snap.Region,
		Country:     snap.Country,
		RuleType:    string(snap.RuleType),
	}

	if p.lock != nil {
		release, err := p.lock.Acquire(ctx, partition)
		if err != nil {
			return nil, err
		}
		defer release(ctx)
	}

	data, err := ast.MarshalCanonical()
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindCompilation, "AST serialization failed", err)
	}
	checksum := canonical.ChecksumBytes(data)

	version, err := p.manifests.NextVersion(ctx, partition)
	if err != nil {
		return nil, err
	}

	coords := artifacts.Coordinates{
		Environment:  snap.Environment,
		Country:      snap.Country,
		PartitionKey: partitionKey,
		Version:      version,
	}

	// Step (a): the immutable artifact. On failure nothing has been
	// recorded anywhere.
	uri, err := p.store.PutArtifact(ctx, coords, data)
	if err != nil {
		return nil, err
	}

	// Step (b): the governance manifest row. On failure the uploaded
	// artifact is an orphan, which is tolerated.
	record := &manifest.Record{
		ManifestID:           p.newID(),
		Environment:          snap.Environment,
		Region:               snap.Region,
		Country:              snap.Country,
		RuleType:             string(snap.RuleType),
		RuntimeVersion:       version,
		RulesetVersionID:     snap.ID,
		FieldRegistryVersion: snap.FieldRegistryVersion,
		ArtifactURI:          uri,
		Checksum:             checksum,
		CreatedAt:            p.now(),
		CreatedBy:            actor,
	}
	if err := p.manifests.Insert(ctx, *record); err != nil {
		return nil, err
	}

	// Step (c): the runtime pointer, flipped last.
	if err := p.writePointer(ctx, coords, snap, record); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "published ruleset artifact",
		"ruleset_version_id", snap.ID,
		"partition_key", partitionKey,
		"runtime_version", version,
		"artifact_uri", uri,
		"checksum", checksum,
	)
	return record, nil
}

func (p *Publisher) writePointer(ctx context.Context, coords artifacts.Coordinates, snap *rules.Snapshot, record *manifest.Record) error {
	pointer := Pointer{
		SchemaVersion:        PointerSchemaVersion,
		Environment:          snap.Environment,
		Region:               snap.Region,
		Country:              snap.Country,
		RulesetKey:           snap.RulesetKey,
		RulesetVersion:       record.RuntimeVersion,
		ArtifactURI:          record.ArtifactURI,
		Checksum:             record.Checksum,
		PublishedAt:          record.CreatedAt.UTC().Format(time.RFC3339),
		FieldRegistryVersion: snap.FieldRegistryVersion,
	}

	if err := p.validatePointer(pointer); err != nil {
		return err
	}

	if existing, err := p.readExistingPointer(ctx, coords); err != nil {
		return err
	} else if existing != nil {
		if err := checkSchemaCompatible(*existing); err != nil {
			return err
		}
	}

	data, err := canonical.MarshalCanonical(pointer)
	if err != nil {
		return errdefs.Wrap(errdefs.KindValidation, "runtime pointer serialization failed", err)
	}
	if _, err := p.store.WritePointer(ctx, coords, data); err != nil {
		return err
	}
	return nil
}

func (p *Publisher) validatePointer(pointer Pointer) error {
	raw, err := json.Marshal(pointer)
	if err != nil {
		return errdefs.Wrap(errdefs.KindValidation, "runtime pointer encode failed", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return errdefs.Wrap(errdefs.KindValidation, "runtime pointer decode failed", err)
	}
	if err := p.schema.Validate(generic); err != nil {
		return errdefs.Wrap(errdefs.KindValidation, "runtime pointer failed schema preflight", err)
	}
	return nil
}

func (p *Publisher) readExistingPointer(ctx context.Context, coords artifacts.Coordinates) (*Pointer, error) {
	data, err := p.store.GetPointer(ctx, coords)
	if err != nil {
		if errdefs.IsKind(err, errdefs.KindNotFound) {
			return nil, nil // first publish for the partition
		}
		return nil, err
	}
	var existing Pointer
	if err := json.Unmarshal(data, &existing); err != nil {
		// An unreadable pointer is overwritten rather than blocking the
		// publish; the artifact and manifest row are already durable.
		p.logger.WarnContext(ctx, "existing runtime pointer is unreadable, overwriting",
			"key", coords.PointerKey(), "error", err)
		return nil, nil
	}
	return &existing, nil
}
