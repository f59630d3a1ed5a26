package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RepoConfig(t *testing.T) {
	tune, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.WorldID == "" {
		t.Fatalf("world_id missing")
	}
	if tune.TickRateHz <= 0 || tune.StreamRadius <= 0 {
		t.Fatalf("bad defaults: %+v", tune)
	}
}

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestLoad_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("tick_rate_hz: 20\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tune, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.TickRateHz != 20 {
		t.Fatalf("tick_rate_hz = %d, want 20", tune.TickRateHz)
	}
	if tune.StreamRadius != Defaults().StreamRadius {
		t.Fatalf("unset field lost default: %+v", tune)
	}
}
