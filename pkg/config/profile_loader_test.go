package config

import (
	"os"
	"path/filepath"
	"testing"
)

const productionProfile = `
name: Production EU
code: production
region: EU
countries: [SE, NO, DK, FI]
storage:
  type: s3
  bucket: fraud-rulesets
publish:
  require_lock: true
  lock_ttl: 45s
  redis_addr: redis:6379
telemetry:
  otlp_endpoint: otel-collector:4317
  sample_ratio: 0.1
`

const stagingProfile = `
name: Staging
region: EU
storage:
  type: file
  data_dir: ./data/staging
publish:
  require_lock: false
`

func writeProfiles(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "profile_production.yaml"), []byte(productionProfile), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "profile_staging.yaml"), []byte(stagingProfile), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadProfile_Production(t *testing.T) {
	dir := writeProfiles(t)
	p, err := LoadProfile(dir, "production")
	if err != nil {
		t.Fatalf("LoadProfile(production): %v", err)
	}
	if p.Name != "Production EU" {
		t.Errorf("expected name 'Production EU', got %q", p.Name)
	}
	if p.Storage.Type != "s3" {
		t.Errorf("expected s3 storage, got %q", p.Storage.Type)
	}
	if !p.Publish.RequireLock {
		t.Error("production should require the publish lock")
	}
	if p.Telemetry.SampleRatio != 0.1 {
		t.Errorf("expected sample ratio 0.1, got %v", p.Telemetry.SampleRatio)
	}
}

func TestLoadProfile_CodeDefaultsFromFilename(t *testing.T) {
	dir := writeProfiles(t)
	p, err := LoadProfile(dir, "STAGING")
	if err != nil {
		t.Fatalf("LoadProfile(staging): %v", err)
	}
	if p.Code != "staging" {
		t.Errorf("expected code 'staging', got %q", p.Code)
	}
	if p.Publish.RequireLock {
		t.Error("staging should not require the publish lock")
	}
}

func TestLoadProfile_Missing(t *testing.T) {
	dir := writeProfiles(t)
	if _, err := LoadProfile(dir, "sandbox"); err == nil {
		t.Error("expected error for missing profile")
	}
}

func TestLoadAllProfiles(t *testing.T) {
	dir := writeProfiles(t)
	profiles, err := LoadAllProfiles(dir)
	if err != nil {
		t.Fatalf("LoadAllProfiles: %v", err)
	}
	if len(profiles) != 2 {
		t.Errorf("expected 2 profiles, got %d", len(profiles))
	}
	for code, p := range profiles {
		if p.Name == "" {
			t.Errorf("profile %s has empty name", code)
		}
	}
}

func TestServesCountry(t *testing.T) {
	p := &DeploymentProfile{Countries: []string{"SE", "NO"}}
	if !p.ServesCountry("se") {
		t.Error("country match should be case-insensitive")
	}
	if p.ServesCountry("DE") {
		t.Error("DE is not in the country list")
	}

	open := &DeploymentProfile{}
	if !open.ServesCountry("DE") {
		t.Error("an empty country list serves everything")
	}
}
