package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/trace"

	"github.com/atlasrisk/rulegate/pkg/canonical"
	"github.com/atlasrisk/rulegate/pkg/compiler"
	"github.com/atlasrisk/rulegate/pkg/config"
	"github.com/atlasrisk/rulegate/pkg/rules"
)

func runCompileCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("compile", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		rulesetID        string
		rulesetVersionID string
		outPath          string
		pretty           bool
		jsonOutput       bool
	)

	cmd.StringVar(&rulesetID, "ruleset", "", "Ruleset ID to compile (REQUIRED)")
	cmd.StringVar(&rulesetVersionID, "ruleset-version", "", "Ruleset version ID (default: the ACTIVE version)")
	cmd.StringVar(&outPath, "out", "", "Write the artifact to this path instead of stdout")
	cmd.BoolVar(&pretty, "pretty", false, "Indent the artifact for reading (not the canonical form)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output a result envelope as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if rulesetID == "" {
		fmt.Fprintln(stderr, "Error: --ruleset is required")
		cmd.Usage()
		return 2
	}

	ctx := context.Background()
	cfg := config.Load()
	setupLogger(cfg.LogLevel)

	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening database: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	repo := rules.NewSQLRepository(db)
	if err := repo.Init(ctx); err != nil {
		fmt.Fprintf(stderr, "Error initializing schema: %v\n", err)
		return 1
	}

	provider, shutdown := newTelemetry(ctx, cfg)
	defer shutdown()
	if provider != nil {
		var span trace.Span
		ctx, span = provider.StartSpan(ctx, "rulegate.compile")
		defer span.End()
	}

	set, snap, err := compiler.New(repo, recorderFor(provider)).Compile(ctx, rulesetID, rulesetVersionID)
	if err != nil {
		fmt.Fprintf(stderr, "Compilation failed: %v\n", err)
		return 1
	}

	data, err := set.MarshalCanonical()
	if err != nil {
		fmt.Fprintf(stderr, "Serialization failed: %v\n", err)
		return 1
	}
	checksum := canonical.ChecksumBytes(data)

	output := data
	if pretty {
		s, perr := canonical.MarshalPretty(set.Canonical())
		if perr != nil {
			fmt.Fprintf(stderr, "Serialization failed: %v\n", perr)
			return 1
		}
		output = []byte(s)
	}

	if outPath != "" {
		if err := os.WriteFile(outPath, output, 0o644); err != nil {
			fmt.Fprintf(stderr, "Error writing artifact: %v\n", err)
			return 1
		}
	}

	if jsonOutput {
		result := map[string]any{
			"ruleset_id":         snap.RulesetID,
			"ruleset_version_id": snap.ID,
			"version":            snap.Version,
			"rule_count":         len(set.Rules),
			"checksum":           checksum,
			"bytes":              len(data),
		}
		if outPath != "" {
			result["artifact_path"] = outPath
		}
		enc, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(stdout, string(enc))
		return 0
	}

	if outPath == "" {
		fmt.Fprintln(stdout, string(output))
	}
	fmt.Fprintf(stderr, "compiled %s (%d rules, %s)\n", snap.ID, len(set.Rules), checksum)
	return 0
}
