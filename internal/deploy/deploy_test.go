package deploy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgcompose/pgcompose/internal/diff"
	"github.com/pgcompose/pgcompose/internal/fingerprint"
	"github.com/pgcompose/pgcompose/internal/ignore"
	"github.com/pgcompose/pgcompose/internal/plan"
	"github.com/pgcompose/pgcompose/internal/source"
	"github.com/pgcompose/pgcompose/ir"
	"github.com/pgcompose/pgcompose/testutil"
)

func buildPlan(t *testing.T, from, to string) *plan.Plan {
	t.Helper()
	a, err := ir.Load(from)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ir.Load(to)
	if err != nil {
		t.Fatal(err)
	}
	return plan.Generate(diff.Compute(a, b), plan.Options{})
}

func TestExecuteDryRun(t *testing.T) {
	p := buildPlan(t, ``, `CREATE TABLE t (id int);`)
	// The URL is never dialed in dry-run mode.
	res, err := Execute(context.Background(), "postgres://nowhere.invalid/db", p, Options{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if !res.DryRun || res.Executed != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if diff := cmp.Diff(p.Statements(), res.Statements); diff != "" {
		t.Errorf("statements mismatch (-want +got):\n%s", diff)
	}
}

func TestStatementError(t *testing.T) {
	err := &StatementError{Index: 1, SQL: "DROP TABLE t;", Err: &pgconn.PgError{Code: "42P01", Message: `table "t" does not exist`}}
	if !strings.Contains(err.Error(), "statement 2 failed") || !strings.Contains(err.Error(), "42P01") {
		t.Errorf("Error() = %q", err.Error())
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Error("StatementError should unwrap to the driver error")
	}
}

func TestExecuteIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	container := testutil.SetupPostgresContainer(ctx, t)
	defer container.Terminate(ctx, t)

	initial := `CREATE TABLE users (id serial PRIMARY KEY, name text);`
	if _, err := container.Conn.ExecContext(ctx, initial); err != nil {
		t.Fatal(err)
	}

	current, err := source.Load(ctx, container.DSN, source.Options{})
	if err != nil {
		t.Fatal(err)
	}
	desired, err := ir.Load(`
CREATE TABLE users (id serial PRIMARY KEY, name text NOT NULL DEFAULT '', email text);
CREATE VIEW named_users AS SELECT id, name FROM users;`)
	if err != nil {
		t.Fatal(err)
	}
	p := plan.Generate(diff.Compute(current.Catalog, desired), plan.Options{})

	t.Run("applies in one transaction", func(t *testing.T) {
		res, err := Execute(ctx, container.DSN, p, Options{VerifyFingerprint: true, LockTimeout: 5 * time.Second})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if res.Executed != len(p.Steps) {
			t.Errorf("executed %d of %d statements", res.Executed, len(p.Steps))
		}
		after, err := source.Load(ctx, container.DSN, source.Options{})
		if err != nil {
			t.Fatal(err)
		}
		if !after.Catalog.Has(ir.NewName("", "named_users")) {
			t.Errorf("view not created:\n%s", after.SQL)
		}
	})

	t.Run("refuses a stale plan", func(t *testing.T) {
		_, err := Execute(ctx, container.DSN, p, Options{VerifyFingerprint: true})
		var mismatch *fingerprint.MismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("expected *fingerprint.MismatchError, got %v", err)
		}
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		bad := &plan.Plan{Steps: []plan.Step{
			{SQL: "CREATE TABLE rollback_marker (id int);"},
			{SQL: "ALTER TABLE missing_table ADD COLUMN x int;"},
		}}
		_, err := Execute(ctx, container.DSN, bad, Options{})
		var stmtErr *StatementError
		if !errors.As(err, &stmtErr) || stmtErr.Index != 1 {
			t.Fatalf("expected failure at statement 2, got %v", err)
		}
		var exists bool
		if err := container.Conn.QueryRowContext(ctx, "SELECT to_regclass('rollback_marker') IS NOT NULL").Scan(&exists); err != nil {
			t.Fatal(err)
		}
		if exists {
			t.Error("first statement survived the rollback")
		}
	})
}

func TestExecuteVerifiesWithSourceOptions(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	container := testutil.SetupPostgresContainer(ctx, t)
	defer container.Terminate(ctx, t)

	setup := `
CREATE SCHEMA app;
CREATE TABLE app.accounts (id int PRIMARY KEY);
CREATE TABLE app.scratch_import (id int);
CREATE TABLE public.unrelated (id int);`
	if _, err := container.Conn.ExecContext(ctx, setup); err != nil {
		t.Fatal(err)
	}

	opts := source.Options{DefaultSchema: "app", Ignore: &ignore.Config{Tables: []string{"scratch_*"}}}
	current, err := source.Load(ctx, container.DSN, opts)
	if err != nil {
		t.Fatal(err)
	}
	desired, err := ir.Load(`
CREATE TABLE accounts (id int PRIMARY KEY, label text);`, ir.WithDefaultSchema("app"))
	if err != nil {
		t.Fatal(err)
	}
	p := plan.Generate(diff.Compute(current.Catalog, desired), plan.Options{})

	res, err := Execute(ctx, container.DSN, p, Options{VerifyFingerprint: true, Source: opts})
	if err != nil {
		t.Fatalf("Execute with the plan's source options: %v", err)
	}
	if res.Executed != len(p.Steps) {
		t.Errorf("executed %d of %d statements", res.Executed, len(p.Steps))
	}
}
