package serve

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/pgcompose/pgcompose/internal/source"
)

func TestConfig(t *testing.T) {
	dir := t.TempDir()
	ignorePath := filepath.Join(dir, "ignore.toml")
	if err := os.WriteFile(ignorePath, []byte("[views]\npatterns = [\"tmp_*\"]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	ignoreFile = ignorePath
	allowFileSources = true
	defaultSchema = "app"
	t.Cleanup(func() {
		ignoreFile = ""
		allowFileSources = false
		defaultSchema = "public"
	})

	cfg, err := Config()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(cfg.AllowedSources, source.KindFile) || !slices.Contains(cfg.AllowedSources, source.KindDatabase) {
		t.Errorf("unexpected allowed sources: %v", cfg.AllowedSources)
	}
	if cfg.Source.DefaultSchema != "app" {
		t.Errorf("expected default schema app, got %q", cfg.Source.DefaultSchema)
	}
	if cfg.Source.Ignore == nil || len(cfg.Source.Ignore.Views) != 1 {
		t.Errorf("ignore file not loaded: %+v", cfg.Source.Ignore)
	}
}

func TestConfigDefaults(t *testing.T) {
	ignoreFile = filepath.Join(t.TempDir(), "missing")
	t.Cleanup(func() { ignoreFile = "" })

	cfg, err := Config()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AllowedSources != nil {
		t.Errorf("file sources should stay disabled, got %v", cfg.AllowedSources)
	}
	if cfg.Source.Ignore != nil {
		t.Errorf("expected no ignore rules, got %+v", cfg.Source.Ignore)
	}
}
