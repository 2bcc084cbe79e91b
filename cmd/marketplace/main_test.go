package main

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestReadConfig_AppliesFileAndLogger(t *testing.T) {
	prevFormatter, prevLevel := log.StandardLogger().Formatter, log.GetLevel()
	t.Cleanup(func() {
		log.SetFormatter(prevFormatter)
		log.SetLevel(prevLevel)
	})

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "http:\n  addr: \":18080\"\nlog:\n  level: warn\n  format: json\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := readConfig(path)
	if err != nil {
		t.Fatalf("readConfig failed: %v", err)
	}
	if cfg.HTTPAddr != ":18080" {
		t.Fatalf("unexpected http addr: %s", cfg.HTTPAddr)
	}
	if log.GetLevel() != log.WarnLevel {
		t.Fatalf("expected warn level, got %s", log.GetLevel())
	}
	if _, ok := log.StandardLogger().Formatter.(*log.JSONFormatter); !ok {
		t.Fatalf("expected json formatter, got %T", log.StandardLogger().Formatter)
	}
}

func TestReadConfig_MissingFile(t *testing.T) {
	if _, err := readConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
