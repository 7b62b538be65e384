package deploy

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pgcompose/pgcompose/testutil"
	"github.com/spf13/pflag"
)

func runDeployCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	DeployCmd.SetOut(&stdout)
	DeployCmd.SetErr(&stdout)
	DeployCmd.SetIn(strings.NewReader(stdin))
	DeployCmd.SetArgs(append(args, "--ignore-file", filepath.Join(t.TempDir(), "none")))
	t.Cleanup(func() {
		DeployCmd.Flags().VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	})
	err := DeployCmd.Execute()
	return stdout.String(), err
}

func TestDeployRequiresDatabase(t *testing.T) {
	t.Setenv("PGDATABASE", "")
	t.Setenv("PGUSER", "")
	_, err := runDeployCommand(t, "", "--file", "CREATE TABLE t (id int);")
	if err == nil || !strings.Contains(err.Error(), "database name is required") {
		t.Errorf("expected missing database error, got %v", err)
	}
}

func TestDeployIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	container := testutil.SetupPostgresContainer(ctx, t)
	defer container.Terminate(ctx, t)

	desired := "CREATE TABLE users (id serial PRIMARY KEY, name text NOT NULL);"

	out, err := runDeployCommand(t, "", "--url", container.DSN, "--file", desired, "--dry-run", "--no-color")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(out, "users") {
		t.Errorf("expected the plan in the output, got:\n%s", out)
	}

	out, err = runDeployCommand(t, "no\n", "--url", container.DSN, "--file", desired, "--no-color")
	if err != nil {
		t.Fatalf("cancelled deploy: %v", err)
	}
	if !strings.Contains(out, "Deploy cancelled.") {
		t.Errorf("expected cancellation, got:\n%s", out)
	}

	out, err = runDeployCommand(t, "", "--url", container.DSN, "--file", desired, "--auto-approve", "--no-color", "--lock-timeout", "5s")
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if !strings.Contains(out, "Changes applied successfully!") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, err = runDeployCommand(t, "", "--url", container.DSN, "--file", desired, "--auto-approve")
	if err != nil {
		t.Fatalf("second deploy: %v", err)
	}
	if !strings.Contains(out, "already up to date") {
		t.Errorf("expected no changes after deploying, got:\n%s", out)
	}
}
