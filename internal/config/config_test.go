package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr == "" || cfg.LogLevel != "info" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxConnections <= 0 {
		t.Errorf("expected positive max_connections default, got %d", cfg.MaxConnections)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected defaults written to disk: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"listen_addr": "127.0.0.1:9999", "log_level": "debug"}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != "127.0.0.1:9999" || cfg.LogLevel != "debug" {
		t.Errorf("file values not loaded: %+v", cfg)
	}
	if cfg.MaxConnections <= 0 {
		t.Errorf("missing fields should keep defaults, got %d", cfg.MaxConnections)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("CHATFEED_LOG_LEVEL", "error")
	t.Setenv("CHATFEED_TOKEN_MODEL", "gpt-4o")
	t.Setenv("CHATFEED_MAX_CONNECTIONS", "16")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "error" || cfg.TokenModel != "gpt-4o" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if cfg.MaxConnections != 16 {
		t.Errorf("max connections override not applied: %d", cfg.MaxConnections)
	}
}

func TestEnvMaxConnectionsRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("CHATFEED_MAX_CONNECTIONS", "lots")

	if _, err := Load(path); err == nil {
		t.Error("expected error for non-numeric max connections")
	}
}

func TestGetSetValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}

	if err := SetValue(path, "max_connections", "8"); err != nil {
		t.Fatal(err)
	}

	val, err := GetValue(path, "max_connections")
	if err != nil {
		t.Fatal(err)
	}
	if val != float64(8) {
		t.Errorf("expected 8, got %v (%T)", val, val)
	}

	if err := SetValue(path, "no_such_key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := GetValue(path, "no_such_key"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestFlattenRoundTrip(t *testing.T) {
	nested := map[string]any{
		"a": map[string]any{"b": "x", "c": float64(2)},
		"d": true,
	}

	flat := Flatten(nested)
	if flat["a.b"] != "x" || flat["a.c"] != float64(2) || flat["d"] != true {
		t.Errorf("unexpected flatten result: %v", flat)
	}

	back := Unflatten(flat)
	inner, ok := back["a"].(map[string]any)
	if !ok || inner["b"] != "x" {
		t.Errorf("unflatten did not restore nesting: %v", back)
	}
}
