package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/atlasrisk/rulegate/pkg/artifacts"
	"github.com/atlasrisk/rulegate/pkg/canonical"
	"github.com/atlasrisk/rulegate/pkg/publisher"
)

func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		environment string
		country     string
		partition   string
		jsonOutput  bool
	)

	cmd.StringVar(&environment, "env", "", "Environment of the partition (REQUIRED)")
	cmd.StringVar(&country, "country", "", "ISO country code of the partition (REQUIRED)")
	cmd.StringVar(&partition, "partition", "", "Partition key: CARD_AUTH or CARD_MONITORING (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if environment == "" || country == "" || partition == "" {
		fmt.Fprintln(stderr, "Error: --env, --country, and --partition are required")
		cmd.Usage()
		return 2
	}

	ctx := context.Background()
	store, err := artifacts.NewStoreFromEnv(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error initializing artifact store: %v\n", err)
		return 1
	}

	coords := artifacts.Coordinates{
		Environment:  environment,
		Country:      country,
		PartitionKey: partition,
	}

	fail := func(reason string) int {
		if jsonOutput {
			result := map[string]any{
				"pointer_key": coords.PointerKey(),
				"valid":       false,
				"error":       reason,
			}
			enc, _ := json.MarshalIndent(result, "", "  ")
			fmt.Fprintln(stdout, string(enc))
		} else {
			fmt.Fprintf(stderr, "Verification failed: %s\n", reason)
		}
		return 1
	}

	pointerData, err := store.GetPointer(ctx, coords)
	if err != nil {
		return fail(err.Error())
	}

	var pointer publisher.Pointer
	if err := json.Unmarshal(pointerData, &pointer); err != nil {
		return fail(fmt.Sprintf("unreadable pointer: %v", err))
	}

	coords.Version = pointer.RulesetVersion
	artifact, err := store.GetArtifact(ctx, coords)
	if err != nil {
		return fail(err.Error())
	}

	actual := canonical.ChecksumBytes(artifact)
	if actual != pointer.Checksum {
		return fail(fmt.Sprintf("checksum mismatch: pointer says %s, artifact is %s", pointer.Checksum, actual))
	}

	if jsonOutput {
		result := map[string]any{
			"pointer_key":     coords.PointerKey(),
			"valid":           true,
			"ruleset_key":     pointer.RulesetKey,
			"ruleset_version": pointer.RulesetVersion,
			"artifact_uri":    pointer.ArtifactURI,
			"checksum":        pointer.Checksum,
			"published_at":    pointer.PublishedAt,
		}
		enc, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(stdout, string(enc))
	} else {
		fmt.Fprintf(stdout, "Pointer verified: %s\n", coords.PointerKey())
		fmt.Fprintf(stdout, "   Ruleset:   %s v%d\n", pointer.RulesetKey, pointer.RulesetVersion)
		fmt.Fprintf(stdout, "   Artifact:  %s\n", pointer.ArtifactURI)
		fmt.Fprintf(stdout, "   Checksum:  %s\n", pointer.Checksum)
		fmt.Fprintf(stdout, "   Published: %s\n", pointer.PublishedAt)
	}
	return 0
}
