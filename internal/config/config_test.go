package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Layout.MarginLeft != 180 || cfg.Zoom.Initial != 0.85 {
		t.Fatalf("unexpected defaults: margin_left=%d initial=%g", cfg.Layout.MarginLeft, cfg.Zoom.Initial)
	}
	if cfg.HasAPIKey() {
		t.Fatalf("HasAPIKey() = true with empty environment")
	}
}

func TestLoadOverridesOnlyGivenFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	body := []byte(`
layout:
  width: 1600
zoom:
  initial: 1.2
server:
  session_ttl: 5m
lod:
  bands:
    - {below_zoom: 1.0, min_importance: 9}
    - {below_zoom: 2.0, min_importance: 6}
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Layout.Width != 1600 {
		t.Fatalf("width = %d, want 1600", cfg.Layout.Width)
	}
	if cfg.Layout.Height != Default().Layout.Height {
		t.Fatalf("height = %d, want default", cfg.Layout.Height)
	}
	if cfg.Zoom.Initial != 1.2 {
		t.Fatalf("zoom.initial = %g", cfg.Zoom.Initial)
	}
	if cfg.Server.SessionTTL != 5*time.Minute {
		t.Fatalf("session_ttl = %v", cfg.Server.SessionTTL)
	}
	if len(cfg.LOD.Bands) != 2 {
		t.Fatalf("lod bands = %d, want 2", len(cfg.LOD.Bands))
	}
}

func TestValidateRejectsNonMonotonicBands(t *testing.T) {
	cfg := Default()
	cfg.LOD.Bands = []Band{{BelowZoom: 1, MinImportance: 6}, {BelowZoom: 2, MinImportance: 8}}
	err := cfg.Validate()
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("Validate() = %v, want ErrInvalid", err)
	}
}

func TestValidateRejectsBadZoom(t *testing.T) {
	cfg := Default()
	cfg.Zoom.Initial = 20
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Validate() = %v, want ErrInvalid", err)
	}
}

func TestApplyEnvPrefersGeminiKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "primary")
	t.Setenv("API_KEY", "legacy")
	t.Setenv("LOG_LEVEL", "debug")
	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Gateway.APIKey != "primary" {
		t.Fatalf("APIKey = %q, want primary", cfg.Gateway.APIKey)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Logging.Level = %q", cfg.Logging.Level)
	}

	t.Setenv("GEMINI_API_KEY", "")
	cfg.ApplyEnv()
	if cfg.Gateway.APIKey != "legacy" {
		t.Fatalf("APIKey = %q, want legacy fallback", cfg.Gateway.APIKey)
	}
}
