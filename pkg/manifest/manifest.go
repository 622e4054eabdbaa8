// Package manifest is the governance record store for publication events.
// One append-only row per successful publish; the row is the durable
// governance-side truth about which artifact exists at which version.
package manifest

import (
	"context"
	"time"
)

// Partition is the coordinate space runtime versions are monotonic within.
type Partition struct {
	Environment string
	Region      string
	Country     string
	RuleType    string
}

// Record is one publication manifest row. Append-only.
type Record struct {
	ManifestID           string
	Environment          string
	Region               string
	Country              string
	RuleType             string
	RuntimeVersion       int
	RulesetVersionID     string
	FieldRegistryVersion string
	ArtifactURI          string
	Checksum             string
	CreatedAt            time.Time
	CreatedBy            string
}

// Partition returns the record's version partition.
func (r Record) Partition() Partition {
	return Partition{
		Environment: r.Environment,
		Region:      r.Region,
		Country:     r.Country,
		RuleType:    r.RuleType,
	}
}

// Store is the governance record store contract. The next-version
// computation and the subsequent insert are expected to run within the
// same external transaction scope; a unique constraint on
// (environment, region, country, rule_type, runtime_version) is the
// backstop against two concurrent publishes computing the same version.
type Store interface {
	// NextVersion computes max(existing)+1 for the partition, starting at 1.
	NextVersion(ctx context.Context, p Partition) (int, error)

	// Insert appends exactly one manifest record.
	Insert(ctx context.Context, r Record) error
}
