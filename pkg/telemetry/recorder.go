package telemetry

import (
	"context"
	"time"
)

// CompilationRecorder receives compilation metrics on both success and
// failure paths. Implementations are fire-and-forget: no return value, and
// any internal failure must be swallowed, never propagated to the caller.
type CompilationRecorder interface {
	RecordCompilation(ctx context.Context, status string, duration time.Duration, ruleCount int, astBytes int)
}

// NoopRecorder discards all recordings.
type NoopRecorder struct{}

func (NoopRecorder) RecordCompilation(context.Context, string, time.Duration, int, int) {}
