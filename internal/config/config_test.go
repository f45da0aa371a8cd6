package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/histcache/internal/policy"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "histcache.db" {
		t.Fatalf("expected default db histcache.db, got %q", cfg.DBPath)
	}
	if cfg.Format != "text" {
		t.Fatalf("expected default format text, got %q", cfg.Format)
	}
	level, err := cfg.Level()
	if err != nil {
		t.Fatalf("level: %v", err)
	}
	if level != slog.LevelWarn {
		t.Fatalf("expected default level warn, got %v", level)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HISTCACHE_DB", "/tmp/reports.db")
	t.Setenv("HISTCACHE_POLICY", "policy.yaml")
	t.Setenv("HISTCACHE_LOG_LEVEL", "DEBUG")
	t.Setenv("HISTCACHE_FORMAT", "json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/tmp/reports.db" || cfg.PolicyPath != "policy.yaml" || cfg.Format != "json" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	level, _ := cfg.Level()
	if level != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", level)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{name: "format", key: "HISTCACHE_FORMAT", val: "xml", want: "HISTCACHE_FORMAT"},
		{name: "level", key: "HISTCACHE_LOG_LEVEL", val: "loud", want: "HISTCACHE_LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %s in error, got %v", tt.want, err)
			}
		})
	}
}

func TestPolicyDefault(t *testing.T) {
	p, err := Config{}.Policy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if p.ReservedPrefix != policy.Default().ReservedPrefix {
		t.Fatalf("expected default policy, got %+v", p)
	}
}

func TestPolicyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := "hidden_categories: [INTERNAL]\nreserved_prefix: X\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := Config{PolicyPath: path}.Policy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if len(p.HiddenCategories) != 1 || p.HiddenCategories[0] != "INTERNAL" || p.ReservedPrefix != "X" {
		t.Fatalf("unexpected policy: %+v", p)
	}
}

func TestPolicyMissingFile(t *testing.T) {
	_, err := Config{PolicyPath: filepath.Join(t.TempDir(), "missing.yaml")}.Policy()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "HISTCACHE_POLICY") {
		t.Fatalf("expected HISTCACHE_POLICY in error, got %v", err)
	}
}
