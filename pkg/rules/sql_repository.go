package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atlasrisk/rulegate/pkg/catalog"
	"github.com/atlasrisk/rulegate/pkg/errdefs"
)

// SQLRepository implements Repository using database/sql.
// It supports both Postgres and SQLite via standard drivers.
type SQLRepository struct {
	db *sql.DB
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS ruleset_versions (
	id TEXT PRIMARY KEY,
	ruleset_id TEXT NOT NULL,
	ruleset_key TEXT NOT NULL,
	version INTEGER NOT NULL,
	status TEXT NOT NULL,
	rule_type TEXT NOT NULL,
	environment TEXT NOT NULL,
	region TEXT NOT NULL,
	country TEXT NOT NULL,
	field_registry_version TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS rule_versions (
	id TEXT PRIMARY KEY,
	rule_id TEXT NOT NULL,
	snapshot_id TEXT NOT NULL,
	status TEXT NOT NULL,
	priority INTEGER NOT NULL,
	scope TEXT NOT NULL DEFAULT '{}',
	condition_tree TEXT NOT NULL,
	action TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS field_catalog (
	field_key TEXT PRIMARY KEY,
	data_type TEXT NOT NULL,
	allowed_operators TEXT NOT NULL,
	multi_value_allowed BOOLEAN NOT NULL,
	is_active BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS governance_meta (
	meta_key TEXT PRIMARY KEY,
	meta_value TEXT NOT NULL
);
`

// Init creates the schema if it does not exist.
func (r *SQLRepository) Init(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

const snapshotColumns = `id, ruleset_id, ruleset_key, version, status, rule_type, environment, region, country, field_registry_version`

func (r *SQLRepository) LoadRulesetVersion(ctx context.Context, id string) (*Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM ruleset_versions WHERE id = $1`
	return r.scanSnapshot(r.db.QueryRowContext(ctx, query, id), "ruleset version %q not found", id)
}

func (r *SQLRepository) LoadActiveRulesetVersion(ctx context.Context, rulesetID string) (*Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM ruleset_versions WHERE ruleset_id = $1 AND status = 'ACTIVE'`
	return r.scanSnapshot(r.db.QueryRowContext(ctx, query, rulesetID), "no active ruleset version for ruleset %q", rulesetID)
}

func (r *SQLRepository) scanSnapshot(row *sql.Row, notFoundFormat string, id string) (*Snapshot, error) {
	var s Snapshot
	err := row.Scan(&s.ID, &s.RulesetID, &s.RulesetKey, &s.Version, &s.Status,
		&s.RuleType, &s.Environment, &s.Region, &s.Country, &s.FieldRegistryVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errdefs.NotFound(notFoundFormat, id)
		}
		return nil, errdefs.Persistence("load ruleset version failed", err)
	}
	return &s, nil
}

// LoadAttachedRuleVersions materializes every member in one ordered query.
// The ordering here matches the compiler's deterministic contract so the
// database does the heavy lifting; the compiler still re-asserts it.
func (r *SQLRepository) LoadAttachedRuleVersions(ctx context.Context, snapshotID string) ([]RuleVersion, error) {
	query := `
		SELECT id, rule_id, status, priority, scope, condition_tree, action
		FROM rule_versions
		WHERE snapshot_id = $1
		ORDER BY priority DESC, rule_id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, snapshotID)
	if err != nil {
		return nil, errdefs.Persistence("load attached rule versions failed", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]RuleVersion, 0)
	for rows.Next() {
		var rv RuleVersion
		var scope, tree string
		if err := rows.Scan(&rv.ID, &rv.RuleID, &rv.Status, &rv.Priority, &scope, &tree, &rv.Action); err != nil {
			return nil, errdefs.Persistence("scan rule version failed", err)
		}
		rv.Scope = json.RawMessage(scope)
		rv.ConditionTree = json.RawMessage(tree)
		result = append(result, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, errdefs.Persistence("iterate rule versions failed", err)
	}
	return result, nil
}

func (r *SQLRepository) LoadFieldCatalog(ctx context.Context) (catalog.Catalog, string, error) {
	query := `SELECT field_key, data_type, allowed_operators, multi_value_allowed, is_active FROM field_catalog`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, "", errdefs.Persistence("load field catalog failed", err)
	}
	defer func() { _ = rows.Close() }()

	cat := make(catalog.Catalog)
	for rows.Next() {
		var entry catalog.Entry
		var operators string
		if err := rows.Scan(&entry.Key, &entry.DataType, &operators, &entry.MultiValueAllowed, &entry.IsActive); err != nil {
			return nil, "", errdefs.Persistence("scan field catalog entry failed", err)
		}
		var ops []catalog.Operator
		if err := json.Unmarshal([]byte(operators), &ops); err != nil {
			return nil, "", errdefs.Persistence(
				fmt.Sprintf("field %q has malformed allowed_operators", entry.Key), err)
		}
		entry.AllowedOperators = ops
		cat[entry.Key] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, "", errdefs.Persistence("iterate field catalog failed", err)
	}

	version, err := r.registryVersion(ctx)
	if err != nil {
		return nil, "", err
	}
	return cat, version, nil
}

func (r *SQLRepository) registryVersion(ctx context.Context) (string, error) {
	query := `SELECT meta_value FROM governance_meta WHERE meta_key = 'field_registry_version'`
	var version string
	err := r.db.QueryRowContext(ctx, query).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errdefs.Persistence("load field registry version failed", err)
	}
	return version, nil
}
