package rules

import (
	"context"

	"github.com/atlasrisk/rulegate/pkg/catalog"
)

// Repository is the read contract the compiler consumes. Implementations
// return plain data; no ORM identity semantics are required.
type Repository interface {
	// LoadRulesetVersion loads a snapshot by id, NotFound if absent.
	LoadRulesetVersion(ctx context.Context, id string) (*Snapshot, error)

	// LoadActiveRulesetVersion loads the currently-ACTIVE snapshot for a
	// ruleset, NotFound if none is active.
	LoadActiveRulesetVersion(ctx context.Context, rulesetID string) (*Snapshot, error)

	// LoadAttachedRuleVersions loads every rule version attached to a
	// snapshot in one materialized query. An empty result is valid.
	LoadAttachedRuleVersions(ctx context.Context, snapshotID string) ([]RuleVersion, error)

	// LoadFieldCatalog loads the field catalog and the registry version
	// string (empty when the deployment does not track one).
	LoadFieldCatalog(ctx context.Context) (catalog.Catalog, string, error)
}
