package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"SPAWN_MIN_INTERVAL", "SPAWN_MAX_INTERVAL", "SPAWN_DURATION", "CATCH_COOLDOWN", "SHINY_RATE", "SEND_SPACING", "SEND_ATTEMPTS", "CHAT_TRANSPORT", "DB_DSN"} {
		t.Setenv(k, "")
		if err := os.Unsetenv(k); err != nil {
			t.Fatalf("unset %s: %v", k, err)
		}
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.SpawnMinInterval != 3*time.Minute || cfg.SpawnMaxInterval != 10*time.Minute {
		t.Errorf("unexpected spawn interval defaults: %v..%v", cfg.SpawnMinInterval, cfg.SpawnMaxInterval)
	}
	if cfg.SpawnDuration != 2*time.Minute {
		t.Errorf("SpawnDuration = %v, want 2m", cfg.SpawnDuration)
	}
	if cfg.CatchCooldown != 15*time.Second {
		t.Errorf("CatchCooldown = %v, want 15s", cfg.CatchCooldown)
	}
	if cfg.ShinyRate != 0.01 {
		t.Errorf("ShinyRate = %v, want 0.01", cfg.ShinyRate)
	}
	if cfg.SendAttempts != 3 {
		t.Errorf("SendAttempts = %d, want 3", cfg.SendAttempts)
	}
	if cfg.ChatTransport != "eventsub" {
		t.Errorf("ChatTransport = %q, want eventsub", cfg.ChatTransport)
	}
	if cfg.DBDsn == "" {
		t.Errorf("expected default DB DSN, got empty")
	}
}

func TestLoadRejectsInvertedSpawnWindow(t *testing.T) {
	t.Setenv("SPAWN_MIN_INTERVAL", "10m")
	t.Setenv("SPAWN_MAX_INTERVAL", "1m")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for max < min spawn interval")
	}
}

func TestLoadRejectsBadDurations(t *testing.T) {
	t.Setenv("CATCH_COOLDOWN", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for invalid CATCH_COOLDOWN")
	}
}

func TestLoadRejectsBadShinyRate(t *testing.T) {
	t.Setenv("SHINY_RATE", "1.5")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for SHINY_RATE out of range")
	}
}

func TestValidateChatReady(t *testing.T) {
	t.Setenv("TWITCH_CHANNEL", "chan")
	t.Setenv("TWITCH_CLIENT_ID", "cid")
	t.Setenv("TWITCH_CLIENT_SECRET", "secret")
	cfg, _ := Load()
	if err := cfg.ValidateChatReady(); err != nil {
		t.Errorf("expected valid chat config, got %v", err)
	}
	if err := os.Unsetenv("TWITCH_CHANNEL"); err != nil {
		t.Fatalf("failed to unset TWITCH_CHANNEL: %v", err)
	}
	cfg, _ = Load()
	if err := cfg.ValidateChatReady(); err == nil {
		t.Errorf("expected error when missing twitch envs")
	}
}
