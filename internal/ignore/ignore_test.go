package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pgcompose/pgcompose/ir"
)

func TestIgnorePatterns(t *testing.T) {
	cfg := &Config{
		Tables:    []string{"temp_*", "!temp_keep", "audit.*"},
		Functions: []string{"fn_[0-9]"},
	}

	tests := []struct {
		kind ir.ObjectKind
		name ir.QualifiedName
		want bool
	}{
		{ir.KindTable, ir.NewName("", "temp_data"), true},
		{ir.KindTable, ir.NewName("", "temp_keep"), false},
		{ir.KindTable, ir.NewName("", "users"), false},
		{ir.KindTable, ir.NewName("audit", "log"), true},
		{ir.KindView, ir.NewName("", "temp_data"), false},
		{ir.KindFunction, ir.NewName("", "fn_1"), true},
		{ir.KindFunction, ir.NewName("", "fn_10"), false},
		{ir.KindGrant, ir.NewName("", "temp_data"), false},
	}
	for _, tt := range tests {
		if got := cfg.Ignore(tt.kind, tt.name); got != tt.want {
			t.Errorf("Ignore(%s, %s) = %v, want %v", tt.kind, tt.name, got, tt.want)
		}
	}

	var none *Config
	if none.Ignore(ir.KindTable, ir.NewName("", "temp_data")) || !none.Empty() {
		t.Error("nil config must ignore nothing")
	}
}

func TestLoadIgnoreFileFromPath(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadIgnoreFileFromPath(filepath.Join(dir, IgnoreFileName))
	if err != nil || cfg != nil {
		t.Fatalf("missing file: got %v, %v", cfg, err)
	}

	path := filepath.Join(dir, IgnoreFileName)
	content := `
[tables]
patterns = ["temp_*", "!temp_keep"]

[materialized_views]
patterns = ["mv_cache_*"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadIgnoreFileFromPath(path)
	if err != nil {
		t.Fatalf("LoadIgnoreFileFromPath: %v", err)
	}
	want := &Config{
		Tables:            []string{"temp_*", "!temp_keep"},
		MaterializedViews: []string{"mv_cache_*"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	if err := os.WriteFile(path, []byte("[tables\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadIgnoreFileFromPath(path); err == nil {
		t.Error("expected a TOML syntax error")
	}
}

func TestFilterCatalog(t *testing.T) {
	cfg, err := Parse(`
[tables]
patterns = ["temp_*"]
`)
	if err != nil {
		t.Fatal(err)
	}
	cat, err := ir.Load(`CREATE TABLE users (id int);
CREATE TABLE temp_scratch (id int);
CREATE INDEX temp_scratch_idx ON temp_scratch (id);
GRANT SELECT ON temp_scratch TO app;
ALTER TABLE temp_scratch ADD COLUMN note text;`, ir.WithFilter(cfg))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]ir.QualifiedName{ir.NewName("", "users")}, cat.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}
