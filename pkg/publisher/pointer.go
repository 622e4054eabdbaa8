package publisher

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atlasrisk/rulegate/pkg/errdefs"
)

// PointerSchemaVersion is the schema version stamped into every runtime
// pointer this publisher writes.
const PointerSchemaVersion = "1.0.0"

// Pointer is the runtime manifest pointer: the only mutable object in the
// system. The runtime engine reads nothing else, so it is written last.
type Pointer struct {
	SchemaVersion        string `json:"schema_version"`
	Environment          string `json:"environment"`
	Region               string `json:"region"`
	Country              string `json:"country"`
	RulesetKey           string `json:"ruleset_key"`
	RulesetVersion       int    `json:"ruleset_version"`
	ArtifactURI          string `json:"artifact_uri"`
	Checksum             string `json:"checksum"`
	PublishedAt          string `json:"published_at"`
	FieldRegistryVersion string `json:"field_registry_version,omitempty"`
}

// pointerSchema preflights every pointer document before it is written.
// The checksum pattern matches the persistence layer's fixed-width
// storage constraint.
const pointerSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": [
		"schema_version", "environment", "region", "country",
		"ruleset_key", "ruleset_version", "artifact_uri",
		"checksum", "published_at"
	],
	"properties": {
		"schema_version": {"type": "string", "minLength": 1},
		"environment": {"type": "string", "minLength": 1},
		"region": {"type": "string", "minLength": 1},
		"country": {"type": "string", "minLength": 1},
		"ruleset_key": {"type": "string", "minLength": 1},
		"ruleset_version": {"type": "integer", "minimum": 1},
		"artifact_uri": {"type": "string", "minLength": 1},
		"checksum": {"type": "string", "pattern": "^sha256:[0-9a-f]{64}$"},
		"published_at": {"type": "string", "pattern": "Z$"},
		"field_registry_version": {"type": "string"}
	},
	"additionalProperties": false
}`

func compilePointerSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://rulegate.schemas.local/runtime-pointer.schema.json"
	if err := c.AddResource(url, strings.NewReader(pointerSchema)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// checkSchemaCompatible refuses to overwrite a pointer written by a newer
// major schema version: the runtime fleet reading it may not understand
// the downgraded document.
func checkSchemaCompatible(existing Pointer) error {
	if existing.SchemaVersion == "" {
		return nil
	}
	theirs, err := semver.NewVersion(existing.SchemaVersion)
	if err != nil {
		// A malformed version in an old pointer must not block publishes.
		return nil
	}
	ours := semver.MustParse(PointerSchemaVersion)
	if theirs.Major() > ours.Major() {
		return errdefs.Conflict("existing runtime pointer has schema version %s, newer than this publisher's %s",
			existing.SchemaVersion, PointerSchemaVersion).
			WithDetail("existing_schema_version", existing.SchemaVersion).
			WithDetail("publisher_schema_version", PointerSchemaVersion)
	}
	return nil
}
