package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/atlasrisk/rulegate/pkg/artifacts"
	"github.com/atlasrisk/rulegate/pkg/compiler"
	"github.com/atlasrisk/rulegate/pkg/config"
	"github.com/atlasrisk/rulegate/pkg/manifest"
	"github.com/atlasrisk/rulegate/pkg/publisher"
	"github.com/atlasrisk/rulegate/pkg/rules"
)

func runPublishCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("publish", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		rulesetID        string
		rulesetVersionID string
		actor            string
		jsonOutput       bool
	)

	cmd.StringVar(&rulesetID, "ruleset", "", "Ruleset ID to publish (REQUIRED)")
	cmd.StringVar(&rulesetVersionID, "ruleset-version", "", "Ruleset version ID (default: the ACTIVE version)")
	cmd.StringVar(&actor, "actor", "", "Identity recorded in the publication manifest (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the manifest record as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if rulesetID == "" || actor == "" {
		fmt.Fprintln(stderr, "Error: --ruleset and --actor are required")
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
	manifests := manifest.NewSQLStore(db)
	if err := manifests.Init(ctx); err != nil {
		fmt.Fprintf(stderr, "Error initializing schema: %v\n", err)
		return 1
	}

	store, err := artifacts.NewStoreFromEnv(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error initializing artifact store: %v\n", err)
		return 1
	}

	var lock publisher.PartitionLock
	if cfg.RedisAddr != "" {
		lock = publisher.NewRedisLock(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.PublishLockTTL)
	}

	provider, shutdown := newTelemetry(ctx, cfg)
	defer shutdown()
	if provider != nil {
		var span trace.Span
		ctx, span = provider.StartSpan(ctx, "rulegate.publish")
		defer span.End()
	}

	set, snap, err := compiler.New(repo, recorderFor(provider)).Compile(ctx, rulesetID, rulesetVersionID)
	if err != nil {
		fmt.Fprintf(stderr, "Compilation failed: %v\n", err)
		return 1
	}

	pub, err := publisher.New(store, manifests, lock)
	if err != nil {
		fmt.Fprintf(stderr, "Publisher init failed: %v\n", err)
		return 1
	}

	record, err := pub.Publish(ctx, snap, set, actor)
	if provider != nil {
		status := "success"
		if err != nil {
			status = "failure"
		}
		provider.RecordPublication(ctx, status,
			attribute.String("rule_type", string(snap.RuleType)),
			attribute.String("environment", snap.Environment),
		)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Publish failed: %v\n", err)
		return 1
	}

	if jsonOutput {
		enc, _ := json.MarshalIndent(record, "", "  ")
		fmt.Fprintln(stdout, string(enc))
	} else {
		fmt.Fprintf(stdout, "published %s v%d\n", snap.ID, record.RuntimeVersion)
		fmt.Fprintf(stdout, "   Artifact: %s\n", record.ArtifactURI)
		fmt.Fprintf(stdout, "   Checksum: %s\n", record.Checksum)
	}
	return 0
}
