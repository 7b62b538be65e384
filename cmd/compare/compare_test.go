package compare

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pgcompose/pgcompose/internal/plan"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	CompareCmd.SetOut(&stdout)
	CompareCmd.SetErr(&stderr)
	CompareCmd.SetArgs(args)
	t.Cleanup(func() { resetFlags(CompareCmd) })
	err := CompareCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// resetFlags restores every flag of cmd to its default between runs.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
}

func TestCompareFiles(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.sql")
	newPath := filepath.Join(dir, "new.sql")
	if err := os.WriteFile(oldPath, []byte("CREATE TABLE t (id int, name text);\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newPath, []byte("CREATE TABLE t (id int, name text NOT NULL DEFAULT '');\n"), 0644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := runCommand(t, oldPath, newPath, "--ignore-file", filepath.Join(dir, "none"))
	if err != nil {
		t.Fatal(err)
	}
	want := "ALTER TABLE t ALTER COLUMN name SET NOT NULL;\n\nALTER TABLE t ALTER COLUMN name SET DEFAULT '';\n"
	if diff := cmp.Diff(want, stdout); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestCompareJSONOutput(t *testing.T) {
	dir := t.TempDir()
	stdout, _, err := runCommand(t,
		"CREATE TABLE t (id int);",
		"CREATE TABLE t (id int); GRANT SELECT ON t TO app;",
		"--output-json", "stdout", "--dry-run",
		"--ignore-file", filepath.Join(dir, "none"))
	if err != nil {
		t.Fatal(err)
	}
	var decoded plan.PlanJSON
	if err := json.Unmarshal([]byte(stdout), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}
	if !decoded.DryRun {
		t.Error("expected dry_run in the plan")
	}
	if len(decoded.Steps) != 1 || decoded.Steps[0].SQL != "GRANT SELECT ON TABLE t TO app;" {
		t.Errorf("unexpected steps: %+v", decoded.Steps)
	}
}

func TestCompareInvalidOrder(t *testing.T) {
	_, _, err := runCommand(t, "SELECT 1;", "SELECT 1;", "--order", "random")
	if err == nil {
		t.Error("expected an error for an invalid order")
	}
}

func TestCompareReportsCycles(t *testing.T) {
	dir := t.TempDir()
	_, stderr, err := runCommand(t,
		"SELECT 1;",
		`CREATE TABLE a (id int PRIMARY KEY, b_id int REFERENCES b (id));
CREATE TABLE b (id int PRIMARY KEY, a_id int REFERENCES a (id));`,
		"--ignore-file", filepath.Join(dir, "none"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains([]byte(stderr), []byte("warning:")) {
		t.Errorf("expected a cycle warning on stderr, got %q", stderr)
	}
}
