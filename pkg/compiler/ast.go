// Package compiler turns an approved rule-set snapshot into the canonical
// compiled AST the runtime engine consumes. Compilation is a pure
// transformation over repository reads: snapshot resolution, approval
// gates, lenient condition validation, deterministic ordering, and AST
// assembly. The same snapshot always compiles to byte-identical output.
package compiler

import (
	"github.com/atlasrisk/rulegate/pkg/canonical"
	"github.com/atlasrisk/rulegate/pkg/rules"
)

// EvaluationMode tells the runtime whether to stop at the first matching
// rule or evaluate every rule.
type EvaluationMode string

const (
	ModeFirstMatch  EvaluationMode = "FIRST_MATCH"
	ModeAllMatching EvaluationMode = "ALL_MATCHING"
)

// evaluationModes is the locked rule-type-to-mode table. It is not
// inferred; a rule type outside it fails compilation.
var evaluationModes = map[rules.RuleType]EvaluationMode{
	rules.TypeAllowlist:  ModeFirstMatch,
	rules.TypeBlocklist:  ModeFirstMatch,
	rules.TypeAuth:       ModeFirstMatch,
	rules.TypeMonitoring: ModeAllMatching,
}

// velocityFailurePolicy is fixed for every compiled rule set.
const velocityFailurePolicy = "SKIP"

// Evaluation carries the runtime evaluation settings.
type Evaluation struct {
	Mode EvaluationMode `json:"mode"`
}

// CompiledRule is one rule entry in the compiled AST. Immutable once
// produced; Scope and When hold canonical generic values.
type CompiledRule struct {
	RuleID        string       `json:"ruleId"`
	RuleVersionID string       `json:"ruleVersionId"`
	Priority      int          `json:"priority"`
	Scope         any          `json:"scope"`
	When          any          `json:"when"`
	Action        rules.Action `json:"action"`
}

// CompiledRuleSet is the compiled AST: an ordered rule sequence plus the
// evaluation settings. Rule order is semantically meaningful.
type CompiledRuleSet struct {
	RulesetID             string         `json:"rulesetId"`
	Version               int            `json:"version"`
	RuleType              rules.RuleType `json:"ruleType"`
	Evaluation            Evaluation     `json:"evaluation"`
	VelocityFailurePolicy string         `json:"velocityFailurePolicy"`
	Rules                 []CompiledRule `json:"rules"`

	// canonical is the canonicalized generic form of the whole document,
	// produced once at compile time. Serialization for hashing and storage
	// always goes through it.
	canonical any
}

// Canonical returns the canonical generic form of the AST.
func (s *CompiledRuleSet) Canonical() any {
	return s.canonical
}

// MarshalCanonical returns the compact canonical bytes of the AST, the
// exact bytes the publisher hashes and stores.
func (s *CompiledRuleSet) MarshalCanonical() ([]byte, error) {
	return canonical.MarshalCanonical(s.canonical)
}
