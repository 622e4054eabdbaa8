package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/atlasrisk/rulegate/pkg/config"
	"github.com/atlasrisk/rulegate/pkg/telemetry"
)

// newTelemetry builds an OTLP provider when an endpoint is configured.
// A nil provider means telemetry is off; callers must guard accordingly.
func newTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Provider, func()) {
	if cfg.OTLPEndpoint == "" {
		return nil, func() {}
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.OTLPEndpoint = cfg.OTLPEndpoint
	provider, err := telemetry.New(ctx, tcfg)
	if err != nil {
		slog.Warn("telemetry init failed, continuing without it", "error", err)
		return nil, func() {}
	}

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}
	return provider, shutdown
}

func recorderFor(provider *telemetry.Provider) telemetry.CompilationRecorder {
	if provider == nil {
		return nil
	}
	return provider
}
