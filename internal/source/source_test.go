package source

import (
	"context"
	"database/sql"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pgcompose/pgcompose/internal/ignore"
	"github.com/pgcompose/pgcompose/ir"
)

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "schema.sql")
	if err := os.WriteFile(file, []byte("CREATE TABLE t (id int);"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		spec string
		want Kind
	}{
		{"postgres://u:p@localhost/db", KindDatabase},
		{"postgresql://localhost/db", KindDatabase},
		{"git@github.com:org/repo.git#main", KindGit},
		{"https://github.com/org/repo/tree/main/schema", KindGit},
		{"git+file:///srv/repo.git/schema", KindGit},
		{dir, KindDir},
		{file, KindFile},
		{"CREATE TABLE t (id int);", KindText},
		{"missing.sql", KindText},
	}
	for _, tt := range tests {
		if got := Detect(tt.spec); got != tt.want {
			t.Errorf("Detect(%q) = %s, want %s", tt.spec, got, tt.want)
		}
	}
}

func TestParseGitLocation(t *testing.T) {
	tests := []struct {
		spec string
		want GitLocation
	}{
		{"git@github.com:org/repo.git", GitLocation{Repo: "git@github.com:org/repo.git"}},
		{"git@github.com:org/repo.git/db/schema#v1.2", GitLocation{Repo: "git@github.com:org/repo.git", Ref: "v1.2", Path: "db/schema"}},
		{"https://github.com/org/repo/tree/dev/sql/main.sql", GitLocation{Repo: "https://github.com/org/repo", Ref: "dev", Path: "sql/main.sql"}},
		{"https://github.com/org/repo/schema#main", GitLocation{Repo: "https://github.com/org/repo", Ref: "main", Path: "schema"}},
		{"git+file:///srv/repo.git/schema/", GitLocation{Repo: "file:///srv/repo.git", Path: "schema"}},
	}
	for _, tt := range tests {
		got, err := ParseGitLocation(tt.spec)
		if err != nil {
			t.Errorf("ParseGitLocation(%q): %v", tt.spec, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseGitLocation(%q) mismatch (-want +got):\n%s", tt.spec, diff)
		}
	}

	for _, bad := range []string{"https://github.com/org", "git@host:repo.git/../etc"} {
		if _, err := ParseGitLocation(bad); err == nil {
			t.Errorf("ParseGitLocation(%q): expected an error", bad)
		}
	}
}

func TestGitLocationLocal(t *testing.T) {
	tests := []struct {
		spec string
		want bool
	}{
		{"git@github.com:org/repo.git", false},
		{"https://github.com/org/repo#main", false},
		{"ssh://git@example.com/repo.git", false},
		{"git+file:///srv/repo.git/schema", true},
		{"git+/srv/repo.git#main", true},
		{"git+../repo.git", true},
	}
	for _, tt := range tests {
		loc, err := ParseGitLocation(tt.spec)
		if err != nil {
			t.Fatalf("ParseGitLocation(%q): %v", tt.spec, err)
		}
		if got := loc.Local(); got != tt.want {
			t.Errorf("Local(%q) = %v, want %v", tt.spec, got, tt.want)
		}
	}
}

func TestLoadText(t *testing.T) {
	l, err := Load(context.Background(), "CREATE TABLE t (id int); GRANT SELECT ON t TO app;", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if l.Kind != KindText || l.Catalog.Len() != 2 {
		t.Errorf("unexpected load: kind %s, %d objects", l.Kind, l.Catalog.Len())
	}

	l, err = Load(context.Background(), "CREATE TABLE t (id int); GRANT SELECT ON t TO app;", Options{NoGrants: true})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]ir.QualifiedName{ir.NewName("", "t")}, l.Catalog.Names()); diff != "" {
		t.Errorf("NoGrants mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDirectoryWithIgnore(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"01_tables.sql": "CREATE TABLE users (id int);\nCREATE TABLE tmp_import (id int);\n",
		"02_views.sql":  "CREATE VIEW active AS SELECT id FROM users;\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	l, err := Load(context.Background(), dir, Options{Ignore: &ignore.Config{Tables: []string{"tmp_*"}}})
	if err != nil {
		t.Fatal(err)
	}
	want := []ir.QualifiedName{ir.NewName("", "users"), ir.NewName("", "active")}
	if diff := cmp.Diff(want, l.Catalog.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPair(t *testing.T) {
	a, b, err := LoadPair(context.Background(), "CREATE TABLE a (id int);", "CREATE TABLE b (id int);", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !a.Catalog.Has(ir.NewName("", "a")) || !b.Catalog.Has(ir.NewName("", "b")) {
		t.Error("sources loaded into the wrong slots")
	}

	_, _, err = LoadPair(context.Background(), "CREATE TABLE a (id int);", "ALTER TABLE missing ADD COLUMN x int;", Options{})
	if err == nil || !strings.Contains(err.Error(), "source B") {
		t.Errorf("expected an error for source B, got %v", err)
	}
}

func TestLoadGit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	repo := filepath.Join(t.TempDir(), "schema.git")
	if err := os.MkdirAll(filepath.Join(repo, "db"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repo, "db", "tables.sql"), []byte("CREATE TABLE t (id int);\n"), 0644); err != nil {
		t.Fatal(err)
	}
	for _, args := range [][]string{
		{"init", "--quiet", "--initial-branch=main"},
		{"add", "."},
		{"-c", "user.name=test", "-c", "user.email=test@example.com", "commit", "--quiet", "-m", "init"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Skipf("git %v failed: %v\n%s", args, err, out)
		}
	}

	l, err := Load(context.Background(), "git+file://"+repo+"/db#main", Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Kind != KindGit || !l.Catalog.Has(ir.NewName("", "t")) {
		t.Errorf("unexpected load: kind %s, names %v", l.Kind, l.Catalog.Names())
	}
}

func TestRenderDumpRows(t *testing.T) {
	rows := dumpRows{
		columns: []columnRow{
			{Schema: "public", Table: "t", Name: "id", Type: "integer", NotNull: true, Default: sql.NullString{String: "nextval('t_id_seq'::regclass)", Valid: true}},
			{Schema: "public", Table: "t", Name: "name", Type: "text", NotNull: true, Default: sql.NullString{String: "''::text", Valid: true}},
			{Schema: "public", Table: "t", Name: "total", Type: "integer", Default: sql.NullString{String: "(id * 2)", Valid: true}, Generated: "s"},
		},
		constraints: []constraintRow{
			{Schema: "public", Table: "t", Name: "t_pkey", Type: "p", Definition: "PRIMARY KEY (id)"},
		},
		views: []viewRow{
			{Schema: "public", Name: "v", Definition: " SELECT t.id\n   FROM t;"},
		},
		indexes: []indexRow{
			{Schema: "public", Name: "t_name_idx", Definition: "CREATE INDEX t_name_idx ON public.t USING btree (name)"},
		},
		rowSecurity: []tableRow{{Schema: "public", Name: "t"}},
		policies: []policyRow{
			{Schema: "public", Table: "t", Name: "readers", Permissive: true, Command: "SELECT", Roles: "public", Using: sql.NullString{String: "(id > 0)", Valid: true}},
		},
		grants: []grantRow{
			{Schema: "public", Name: "t", Grantee: "app", Privilege: "SELECT"},
			{Schema: "public", Name: "t", Grantee: "app", Privilege: "INSERT"},
		},
	}

	out := rows.render()
	for _, want := range []string{
		`"id" serial`,
		`"name" text DEFAULT ''::text NOT NULL`,
		`"total" integer GENERATED ALWAYS AS ((id * 2)) STORED`,
		`CONSTRAINT "t_pkey" PRIMARY KEY (id)`,
		"CREATE VIEW \"public\".\"v\" AS\nSELECT t.id\n   FROM t;",
		`GRANT INSERT, SELECT ON TABLE "public"."t" TO "app";`,
		`ALTER TABLE "public"."t" ENABLE ROW LEVEL SECURITY;`,
		`CREATE POLICY "readers" ON "public"."t" FOR SELECT TO PUBLIC USING ((id > 0));`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}

	cat, err := ir.Load(out)
	if err != nil {
		t.Fatalf("dump does not load: %v\n%s", err, out)
	}
	if cat.Len() != 5 {
		t.Errorf("expected table, view, index, policy and grant, got %v", cat.Names())
	}
	if obj, _ := cat.Get(ir.NewName("", "t")); !obj.(*ir.Table).RowSecurity {
		t.Errorf("row level security lost on reload")
	}
}
