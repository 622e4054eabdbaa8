package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeploymentProfile represents an environment-specific configuration
// profile: which countries the environment serves, where its artifacts
// live, and how publishes are guarded.
type DeploymentProfile struct {
	Name      string          `yaml:"name" json:"name"`
	Code      string          `yaml:"code" json:"code"`
	Region    string          `yaml:"region" json:"region"`
	Countries []string        `yaml:"countries" json:"countries"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Publish   PublishConfig   `yaml:"publish" json:"publish"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty" json:"telemetry,omitempty"`
}

// StorageConfig selects the artifact store backend for the environment.
type StorageConfig struct {
	Type      string `yaml:"type" json:"type"` // "file" | "s3" | "gcs"
	Bucket    string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	PathStyle bool   `yaml:"path_style,omitempty" json:"path_style,omitempty"`
	DataDir   string `yaml:"data_dir,omitempty" json:"data_dir,omitempty"`
}

// PublishConfig controls publish-time guards per environment.
type PublishConfig struct {
	RequireLock bool   `yaml:"require_lock" json:"require_lock"`
	LockTTL     string `yaml:"lock_ttl,omitempty" json:"lock_ttl,omitempty"`
	RedisAddr   string `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
}

// TelemetryConfig tunes trace sampling per environment.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint,omitempty" json:"otlp_endpoint,omitempty"`
	SampleRatio  float64 `yaml:"sample_ratio,omitempty" json:"sample_ratio,omitempty"`
}

// LoadProfile loads a deployment profile YAML by environment code.
// It searches the profiles directory for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*DeploymentProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile DeploymentProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}

	return &profile, nil
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles directory.
func LoadAllProfiles(profilesDir string) (map[string]*DeploymentProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*DeploymentProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile DeploymentProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Code == "" {
			// Extract code from filename: profile_staging.yaml -> staging
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Code] = &profile
	}

	return profiles, nil
}

// ServesCountry checks whether the environment publishes rulesets for the
// given ISO country code. An empty country list serves everything.
func (p *DeploymentProfile) ServesCountry(country string) bool {
	if len(p.Countries) == 0 {
		return true
	}
	for _, c := range p.Countries {
		if strings.EqualFold(c, country) {
			return true
		}
	}
	return false
}
