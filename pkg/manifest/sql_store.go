package manifest

import (
	"context"
	"database/sql"

	"github.com/atlasrisk/rulegate/pkg/errdefs"
)

// SQLStore implements Store using database/sql.
// It supports both Postgres and SQLite via standard drivers.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// The checksum column is fixed-width: "sha256:" plus 64 hex characters.
// The unique constraint is the backstop for the max+1 version computation
// under concurrent publishes.
const schema = `
CREATE TABLE IF NOT EXISTS publication_manifest (
	manifest_id TEXT PRIMARY KEY,
	environment TEXT NOT NULL,
	region TEXT NOT NULL,
	country TEXT NOT NULL,
	rule_type TEXT NOT NULL,
	runtime_version INTEGER NOT NULL,
	ruleset_version_id TEXT NOT NULL,
	field_registry_version TEXT NOT NULL DEFAULT '',
	artifact_uri TEXT NOT NULL,
	checksum CHAR(71) NOT NULL,
	created_at TIMESTAMP NOT NULL,
	created_by TEXT NOT NULL,
	UNIQUE (environment, region, country, rule_type, runtime_version)
);
`

// Init creates the schema if it does not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLStore) NextVersion(ctx context.Context, p Partition) (int, error) {
	query := `
		SELECT COALESCE(MAX(runtime_version), 0) + 1
		FROM publication_manifest
		WHERE environment = $1 AND region = $2 AND country = $3 AND rule_type = $4
	`
	var next int
	err := s.db.QueryRowContext(ctx, query, p.Environment, p.Region, p.Country, p.RuleType).Scan(&next)
	if err != nil {
		return 0, errdefs.Persistence("compute next runtime version failed", err)
	}
	return next, nil
}

func (s *SQLStore) Insert(ctx context.Context, r Record) error {
	query := `
		INSERT INTO publication_manifest (
			manifest_id, environment, region, country, rule_type, runtime_version,
			ruleset_version_id, field_registry_version, artifact_uri, checksum,
			created_at, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ManifestID, r.Environment, r.Region, r.Country, r.RuleType, r.RuntimeVersion,
		r.RulesetVersionID, r.FieldRegistryVersion, r.ArtifactURI, r.Checksum,
		r.CreatedAt, r.CreatedBy,
	)
	if err != nil {
		return errdefs.Persistence("insert publication manifest failed", err)
	}
	return nil
}
