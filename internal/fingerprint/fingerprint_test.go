package fingerprint

import (
	"strings"
	"testing"

	"github.com/pgcompose/pgcompose/ir"
)

func mustLoad(t *testing.T, sql string) *ir.Catalog {
	t.Helper()
	cat, err := ir.Load(sql)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cat
}

func TestComputeFingerprint(t *testing.T) {
	fingerprint, err := ComputeFingerprint(mustLoad(t, ""))
	if err != nil {
		t.Fatalf("ComputeFingerprint failed: %v", err)
	}
	if len(fingerprint.Hash) != 64 {
		t.Errorf("expected a sha256 hex digest, got %q", fingerprint.Hash)
	}
	if !strings.HasPrefix(fingerprint.String(), "Schema fingerprint: ") {
		t.Errorf("String() = %q", fingerprint.String())
	}
}

func TestFingerprintIgnoresOrderAndFormatting(t *testing.T) {
	a := mustLoad(t, `
CREATE TABLE users (id int PRIMARY KEY, name text);
CREATE VIEW names AS SELECT name FROM users;`)
	b := mustLoad(t, `
-- reordered
create view names as select name
    from users;
CREATE TABLE users (
    id   integer PRIMARY KEY,
    name text
);`)

	fa, err := ComputeFingerprint(a)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := ComputeFingerprint(b)
	if err != nil {
		t.Fatal(err)
	}
	if err := Compare(fa, fb); err != nil {
		t.Errorf("expected equal fingerprints: %v", err)
	}
}

func TestFingerprintDetectsChanges(t *testing.T) {
	base := mustLoad(t, `CREATE TABLE users (id int, name text);`)
	tests := []struct {
		name string
		sql  string
	}{
		{"column type", `CREATE TABLE users (id bigint, name text);`},
		{"nullability", `CREATE TABLE users (id int NOT NULL, name text);`},
		{"extra object", `CREATE TABLE users (id int, name text); CREATE INDEX users_name_idx ON users (name);`},
		{"grant", `CREATE TABLE users (id int, name text); GRANT SELECT ON users TO app;`},
	}

	fa, err := ComputeFingerprint(base)
	if err != nil {
		t.Fatal(err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb, err := ComputeFingerprint(mustLoad(t, tt.sql))
			if err != nil {
				t.Fatal(err)
			}
			if fa.Hash == fb.Hash {
				t.Error("expected fingerprints to differ")
			}
		})
	}
}
