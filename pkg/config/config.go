package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds pipeline configuration.
type Config struct {
	DatabaseURL     string
	LogLevel        string
	DataDir         string
	ProfilesDir     string
	StorageType     string
	StorageBucket   string
	StorageEndpoint string
	OTLPEndpoint    string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	PublishLockTTL  time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Default to local generic postgres
		dbURL = "postgres://rulegate@localhost:5432/rulegate?sslmode=disable"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	profilesDir := os.Getenv("RULEGATE_PROFILES_DIR")
	if profilesDir == "" {
		profilesDir = "./profiles"
	}

	storageType := os.Getenv("ARTIFACT_STORAGE_TYPE")
	if storageType == "" {
		storageType = "fs"
	}

	redisDB := 0
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			redisDB = n
		}
	}

	lockTTL := 30 * time.Second
	if raw := os.Getenv("PUBLISH_LOCK_TTL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			lockTTL = d
		}
	}

	return &Config{
		DatabaseURL:     dbURL,
		LogLevel:        logLevel,
		DataDir:         dataDir,
		ProfilesDir:     profilesDir,
		StorageType:     storageType,
		StorageBucket:   os.Getenv("ARTIFACT_S3_BUCKET"),
		StorageEndpoint: os.Getenv("ARTIFACT_S3_ENDPOINT"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         redisDB,
		PublishLockTTL:  lockTTL,
	}
}
