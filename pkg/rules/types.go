// Package rules holds the governance-side rule domain: rule-set snapshots,
// attached rule versions, lifecycle statuses, and the read-only repository
// contract the compiler consumes. Approval workflow (maker-checker,
// optimistic locking) lives upstream; this package only reads its outcome.
package rules

import "encoding/json"

// Status is a governance lifecycle state.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusActive          Status = "ACTIVE"
	StatusRejected        Status = "REJECTED"
	StatusRetired         Status = "RETIRED"
)

// Compilable reports whether a snapshot in this status may be compiled.
func (s Status) Compilable() bool {
	return s == StatusApproved || s == StatusActive
}

// RuleType classifies a ruleset by its runtime consumption pattern.
type RuleType string

const (
	TypeAllowlist  RuleType = "ALLOWLIST"
	TypeBlocklist  RuleType = "BLOCKLIST"
	TypeAuth       RuleType = "AUTH"
	TypeMonitoring RuleType = "MONITORING"
)

// Action is the runtime decision a matched rule produces.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionDecline Action = "DECLINE"
	ActionReview  Action = "REVIEW"
)

// Snapshot is one immutable ruleset version: the unit of compilation.
// Ruleset attributes the pipeline needs (key, type, partition coordinates)
// are denormalized onto it so one repository read supplies everything.
type Snapshot struct {
	ID                   string
	RulesetID            string
	RulesetKey           string
	Version              int
	Status               Status
	RuleType             RuleType
	Environment          string
	Region               string
	Country              string
	FieldRegistryVersion string
}

// RuleVersion is one approved-or-not rule revision attached to a snapshot.
// Scope and ConditionTree are kept as raw JSON until validation.
type RuleVersion struct {
	ID            string
	RuleID        string
	Status        Status
	Priority      int
	Scope         json.RawMessage
	ConditionTree json.RawMessage
	Action        Action
}
