package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadUsesDefaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	t.Setenv("API_PROTOCOL", "")
	t.Setenv("FITTING_DEFAULTS_FILE", "")
	t.Setenv("DEV_COMPLETE_AFTER_POLLS", "")
	t.Setenv("DEV_UPLOAD_TTL_SECONDS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIBaseURL != "http://localhost:8090" || cfg.APIProtocol != ProtocolREST {
		t.Fatalf("unexpected api defaults %q %q", cfg.APIBaseURL, cfg.APIProtocol)
	}
	if cfg.DevCompleteAfter != 3 {
		t.Fatalf("expected 3 polls before completion, got %d", cfg.DevCompleteAfter)
	}
	if cfg.DevUploadTTL() != 15*time.Minute {
		t.Fatalf("expected 15m upload ttl, got %v", cfg.DevUploadTTL())
	}
	c := cfg.Defaults.Capture
	if c.Duration() != 4*time.Second || c.FPS != 30 || c.CanvasWidth != 720 || c.CanvasHeight != 1280 {
		t.Fatalf("unexpected capture defaults %+v", c)
	}
	if c.TargetAspect() != 9.0/16.0 {
		t.Fatalf("expected 9:16 target, got %v", c.TargetAspect())
	}
	if cfg.Defaults.Polling.IntervalMS != 2000 || cfg.Defaults.Timeline.CountdownFrom != 3 {
		t.Fatalf("unexpected timeline defaults %+v %+v", cfg.Defaults.Polling, cfg.Defaults.Timeline)
	}
	if cfg.Defaults.Normalizer.MaxSizeKB != 500 || cfg.Defaults.Normalizer.Format != "png" {
		t.Fatalf("unexpected normalizer defaults %+v", cfg.Defaults.Normalizer)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("API_PROTOCOL", "ACTION")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "15")
	t.Setenv("BREAKER_FAILURE_RATIO", "0.25")
	t.Setenv("BREAKER_ENABLED", "nope")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIProtocol != ProtocolAction {
		t.Fatalf("expected action protocol, got %q", cfg.APIProtocol)
	}
	if cfg.HTTPTimeout() != 15*time.Second || cfg.BreakerFailureRatio != 0.25 {
		t.Fatalf("unexpected overrides %v %v", cfg.HTTPTimeout(), cfg.BreakerFailureRatio)
	}
	if !cfg.BreakerEnabled {
		t.Fatalf("expected unparsable bool to keep the default")
	}
}

func TestLoadDefaultsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.yaml")
	if err := os.WriteFile(path, []byte("capture:\n  duration_ms: 6000\nnormalizer:\n  format: jpeg\n"), 0o600); err != nil {
		t.Fatalf("write override: %v", err)
	}
	d, err := LoadDefaults(path)
	if err != nil {
		t.Fatalf("LoadDefaults() error = %v", err)
	}
	if d.Capture.Duration() != 6*time.Second || d.Normalizer.Format != "jpeg" {
		t.Fatalf("expected override to apply, got %+v", d)
	}
	if d.Capture.FPS != 30 || d.Normalizer.MaxDimension != 1920 {
		t.Fatalf("expected untouched keys to keep embedded values, got %+v", d)
	}
}

func TestLoadDefaultsRejectsFractionalDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.yaml")
	if err := os.WriteFile(path, []byte("capture:\n  duration_ms: 4500\n"), 0o600); err != nil {
		t.Fatalf("write override: %v", err)
	}
	if _, err := LoadDefaults(path); err == nil {
		t.Fatalf("expected validation error")
	}
}
