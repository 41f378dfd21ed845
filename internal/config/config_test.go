package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Editor.DiffTimeout() != time.Second {
		t.Fatalf("DiffTimeout = %v", cfg.Editor.DiffTimeout())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty root", func(c *Config) { c.Workspace.Root = " " }, "workspace.root"},
		{"ignore with slash", func(c *Config) { c.Workspace.Ignore = []string{"a/b"} }, "workspace.ignore"},
		{"bad addr", func(c *Config) { c.Viewer.HTTPAddr = "nowhere" }, "viewer.http_addr"},
		{"hostname addr", func(c *Config) { c.Viewer.HTTPAddr = "example.com:80" }, "viewer.http_addr"},
		{"negative timeout", func(c *Config) { c.Editor.DiffTimeoutMs = -1 }, "editor.diff_timeout_ms"},
		{"threshold", func(c *Config) { c.Editor.MatchThreshold = 1.5 }, "editor.match_threshold"},
		{"delete threshold", func(c *Config) { c.Editor.PatchDeleteThreshold = -0.1 }, "editor.patch_delete_threshold"},
		{"data dir", func(c *Config) { c.Storage.DataDir = "" }, "storage.data_dir"},
		{"format timeout", func(c *Config) { c.Format.TimeoutSeconds = 0 }, "format.timeout_seconds"},
		{"format memory", func(c *Config) { c.Format.MaxMemoryMB = -1 }, "format.max_memory_mb"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}

	cfg := Default()
	cfg.Format.Enabled = false
	cfg.Format.TimeoutSeconds = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled format still validated: %v", err)
	}
}

func TestEnsureCreatesThenLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	cfg, created, err := Ensure(path)
	if err != nil || !created {
		t.Fatalf("first Ensure: created=%v err=%v", created, err)
	}
	cfg.Viewer.HTTPAddr = "127.0.0.1:9000"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	cfg, created, err = Ensure(path)
	if err != nil || created {
		t.Fatalf("second Ensure: created=%v err=%v", created, err)
	}
	if cfg.Viewer.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("http_addr = %q", cfg.Viewer.HTTPAddr)
	}
}

func TestLoadKeepsDefaultsAndStripsBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"viewer":{"http_addr":":8080"},"logging":{"level":"debug"}}`)...)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Viewer.HTTPAddr != ":8080" || cfg.Logging.Level != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Editor.MatchThreshold != 0.5 || len(cfg.Workspace.Ignore) != 3 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = ""
	if err := Save(filepath.Join(t.TempDir(), FileName), cfg); err == nil {
		t.Fatal("invalid config saved")
	}
}
