package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected path %q, got %q", path, resolved)
	}
	if cfg.Addr != ":8080" || cfg.SessionBuffer != 64 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.UsesDefaultJWTSecret() {
		t.Fatalf("expected fresh config to carry the placeholder secret")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config file: %v", err)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("addr: \":9000\"\nsession_buffer: 16\noperation_timeout: 3s\nredis_addr: localhost:6379\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WIREDESK_ADDR", ":9100")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9100" {
		t.Fatalf("expected env to override file, got %q", cfg.Addr)
	}
	if cfg.SessionBuffer != 16 {
		t.Fatalf("expected file value for session_buffer, got %d", cfg.SessionBuffer)
	}
	if cfg.OperationTimeout != 3*time.Second {
		t.Fatalf("expected 3s operation timeout, got %v", cfg.OperationTimeout)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.RedisAddr)
	}
	if cfg.JWTIssuer != "wiredesk" {
		t.Fatalf("expected default issuer, got %q", cfg.JWTIssuer)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("session_buffer: 0\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, _, err := Load(nil, path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestUpdateFrom(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":7000", DatabasePath: "/tmp/x.db"})

	if cfg.Addr != ":7000" || cfg.DatabasePath != "/tmp/x.db" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Fatalf("zero values must not override: %v", cfg.ShutdownTimeout)
	}
}
