package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/atlasrisk/rulegate/pkg/canonical"
	"github.com/atlasrisk/rulegate/pkg/catalog"
	"github.com/atlasrisk/rulegate/pkg/condition"
	"github.com/atlasrisk/rulegate/pkg/errdefs"
	"github.com/atlasrisk/rulegate/pkg/rules"
	"github.com/atlasrisk/rulegate/pkg/telemetry"
)

// Compiler orchestrates loading, validation, deterministic ordering, and
// AST assembly for one rule-set snapshot.
type Compiler struct {
	repo     rules.Repository
	recorder telemetry.CompilationRecorder
	logger   *slog.Logger
}

// New creates a Compiler. recorder may be nil; metrics are then discarded.
func New(repo rules.Repository, recorder telemetry.CompilationRecorder) *Compiler {
	if recorder == nil {
		recorder = telemetry.NoopRecorder{}
	}
	return &Compiler{
		repo:     repo,
		recorder: recorder,
		logger:   slog.Default().With("component", "compiler"),
	}
}

// Compile compiles the snapshot named by rulesetVersionID, or the
// currently-ACTIVE snapshot of rulesetID when rulesetVersionID is empty.
// The returned AST is canonicalized; the snapshot is returned alongside it
// for the publisher. Compilation fails fast on the first violation; no
// partial AST is ever returned.
func (c *Compiler) Compile(ctx context.Context, rulesetID, rulesetVersionID string) (*CompiledRuleSet, *rules.Snapshot, error) {
	start := time.Now()

	set, snap, err := c.compile(ctx, rulesetID, rulesetVersionID)

	// Metrics are recorded after the pipeline's real decision is made, on
	// both paths, and can never alter it.
	status := "success"
	ruleCount, astBytes := 0, 0
	if err != nil {
		status = "failure"
	} else {
		ruleCount = len(set.Rules)
		if b, mErr := set.MarshalCanonical(); mErr == nil {
			astBytes = len(b)
		}
	}
	c.record(ctx, status, time.Since(start), ruleCount, astBytes)

	return set, snap, err
}

func (c *Compiler) compile(ctx context.Context, rulesetID, rulesetVersionID string) (*CompiledRuleSet, *rules.Snapshot, error) {
	snap, err := c.resolveSnapshot(ctx, rulesetID, rulesetVersionID)
	if err != nil {
		return nil, nil, err
	}

	if !snap.Status.Compilable() {
		return nil, nil, errdefs.Conflict("ruleset version %q has status %s; only APPROVED or ACTIVE snapshots compile", snap.ID, snap.Status).
			WithDetail("ruleset_version_id", snap.ID).
			WithDetail("status", string(snap.Status))
	}

	mode, ok := evaluationModes[snap.RuleType]
	if !ok {
		return nil, nil, errdefs.Compilation("no evaluation mode mapping for rule type %q", snap.RuleType).
			WithDetail("rule_type", string(snap.RuleType))
	}

	// One materialized read for all members; never per-member look-ups.
	members, err := c.repo.LoadAttachedRuleVersions(ctx, snap.ID)
	if err != nil {
		return nil, nil, err
	}

	if offenders := nonApproved(members); len(offenders) > 0 {
		return nil, nil, errdefs.Compilation("snapshot %q has non-approved rule versions", snap.ID).
			WithDetail("ruleset_version_id", snap.ID).
			WithDetail("rule_version_ids", offenders)
	}

	cat, _, err := c.repo.LoadFieldCatalog(ctx)
	if err != nil {
		return nil, nil, err
	}

	compiled := make([]CompiledRule, 0, len(members))
	for _, member := range members {
		entry, err := c.compileRule(member, cat)
		if err != nil {
			return nil, nil, err
		}
		compiled = append(compiled, entry)
	}

	// Deterministic ordering: priority descending, rule id ascending
	// (lexical) as the tie-break.
	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].Priority != compiled[j].Priority {
			return compiled[i].Priority > compiled[j].Priority
		}
		return compiled[i].RuleID < compiled[j].RuleID
	})

	set := &CompiledRuleSet{
		RulesetID:             snap.RulesetID,
		Version:               snap.Version,
		RuleType:              snap.RuleType,
		Evaluation:            Evaluation{Mode: mode},
		VelocityFailurePolicy: velocityFailurePolicy,
		Rules:                 compiled,
	}

	generic, err := canonical.Canonicalize(set)
	if err != nil {
		return nil, nil, errdefs.Wrap(errdefs.KindCompilation, "AST canonicalization failed", err)
	}
	set.canonical = generic

	c.logger.InfoContext(ctx, "compiled ruleset snapshot",
		"ruleset_id", snap.RulesetID,
		"ruleset_version_id", snap.ID,
		"rule_count", len(compiled),
		"evaluation_mode", string(mode),
	)
	return set, snap, nil
}

func (c *Compiler) resolveSnapshot(ctx context.Context, rulesetID, rulesetVersionID string) (*rules.Snapshot, error) {
	if rulesetVersionID == "" {
		return c.repo.LoadActiveRulesetVersion(ctx, rulesetID)
	}

	snap, err := c.repo.LoadRulesetVersion(ctx, rulesetVersionID)
	if err != nil {
		return nil, err
	}
	if rulesetID != "" && snap.RulesetID != rulesetID {
		return nil, errdefs.Conflict("ruleset version %q belongs to ruleset %q, not %q", snap.ID, snap.RulesetID, rulesetID).
			WithDetail("ruleset_version_id", snap.ID).
			WithDetail("expected_ruleset_id", rulesetID).
			WithDetail("actual_ruleset_id", snap.RulesetID)
	}
	return snap, nil
}

// compileRule validates one member's condition tree in lenient mode
// (runtime-only fields are tolerated) and assembles its AST entry. Any
// validation failure is wrapped with the offending rule-version id and the
// raw tree so operators can diagnose without re-querying governance state.
func (c *Compiler) compileRule(member rules.RuleVersion, cat catalog.Catalog) (CompiledRule, error) {
	rawTree, err := decodeRaw(member.ConditionTree)
	if err != nil {
		return CompiledRule{}, errdefs.Wrap(errdefs.KindCompilation, "condition tree is not valid JSON", err).
			WithDetail("rule_version_id", member.ID).
			WithDetail("tree", truncateTree(member.ConditionTree))
	}

	node, err := condition.Validate(rawTree, cat, true)
	if err != nil {
		return CompiledRule{}, errdefs.Wrap(errdefs.KindCompilation, "condition tree validation failed", err).
			WithDetail("rule_version_id", member.ID).
			WithDetail("tree", truncateTree(member.ConditionTree))
	}

	scope, err := decodeRaw(member.Scope)
	if err != nil {
		return CompiledRule{}, errdefs.Wrap(errdefs.KindCompilation, "rule scope is not valid JSON", err).
			WithDetail("rule_version_id", member.ID)
	}
	if scope == nil {
		scope = map[string]any{}
	}

	return CompiledRule{
		RuleID:        member.RuleID,
		RuleVersionID: member.ID,
		Priority:      member.Priority,
		Scope:         scope,
		When:          node.AsValue(),
		Action:        member.Action,
	}, nil
}

func nonApproved(members []rules.RuleVersion) []string {
	var offenders []string
	for _, m := range members {
		if m.Status != rules.StatusApproved {
			offenders = append(offenders, m.ID)
		}
	}
	sort.Strings(offenders)
	return offenders
}

// decodeRaw decodes raw JSON preserving number literals.
func decodeRaw(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// record calls the observability sink, swallowing anything it might do
// wrong. Metrics never fail a compile.
func (c *Compiler) record(ctx context.Context, status string, duration time.Duration, ruleCount, astBytes int) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WarnContext(ctx, "compilation recorder panicked", "panic", r)
		}
	}()
	c.recorder.RecordCompilation(ctx, status, duration, ruleCount, astBytes)
}

func truncateTree(raw json.RawMessage) string {
	s := string(raw)
	s = strings.Join(strings.Fields(s), " ")
	const max = 512
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
