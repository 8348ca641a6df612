package telemetry

import (
	"context"
	"testing"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init() // second call must not re-register

	if SpawnsCreated == nil || CatchAttempts == nil || MessagesSent == nil {
		t.Fatal("counters not initialized")
	}
	if SendDuration == nil || CatchDuration == nil {
		t.Fatal("histograms not initialized")
	}
	if OutboundQueueDepth == nil || SpawnActiveGauge == nil || ChatConnectedGauge == nil {
		t.Fatal("gauges not initialized")
	}
}

func TestGaugeHelpersNilSafeBeforeInit(t *testing.T) {
	// Helpers must not panic even if Init hasn't run in some code path.
	SetSpawnActive(true)
	SetChatConnected(false)
	SetQueueDepth(3)
}

func TestCorrelationRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty ctx) = %q, want empty", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q, want abc-123", got)
	}
}

func TestTimeFunc(t *testing.T) {
	Init()
	ran := false
	d := TimeFunc(SendDuration, func() { ran = true })
	if !ran {
		t.Error("TimeFunc did not run fn")
	}
	if d < 0 {
		t.Errorf("negative duration %v", d)
	}
	// nil observer must be tolerated
	TimeFunc(nil, func() {})
}
