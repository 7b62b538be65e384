package compose

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pgcompose/pgcompose/internal/sorter"
)

func TestCompareDropsInReverseDependencyOrder(t *testing.T) {
	res, err := Compare(context.Background(),
		"CREATE TABLE t (id int); CREATE VIEW v AS SELECT id FROM t;",
		"SELECT 1;",
		Options{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"DROP VIEW v;", "DROP TABLE t;"}, res.Plan.Statements()); diff != "" {
		t.Errorf("statements mismatch (-want +got):\n%s", diff)
	}
	if len(res.Diff.Removed) != 2 {
		t.Errorf("expected 2 removed objects, got %d", len(res.Diff.Removed))
	}
}

func TestCompareNoGrants(t *testing.T) {
	res, err := Compare(context.Background(),
		"CREATE TABLE t (id int);",
		"CREATE TABLE t (id int); GRANT SELECT ON t TO app;",
		Options{NoGrants: true})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Plan.Empty() {
		t.Errorf("expected no statements, got %q", res.Plan.Statements())
	}
}

func TestMergeLaterSourceWins(t *testing.T) {
	res, err := Merge(context.Background(), []string{
		"CREATE TABLE s (a int, b int);",
		"CREATE TABLE s (c text);",
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"CREATE TABLE s (\n    c text\n);"}, res.Statements); diff != "" {
		t.Errorf("statements mismatch (-want +got):\n%s", diff)
	}
}

func TestSortGrantPlacement(t *testing.T) {
	res, err := Sort(context.Background(),
		"CREATE TABLE t (id int); GRANT SELECT ON t TO app; CREATE TABLE u (id int);",
		Options{Grants: sorter.GrantsAfter})
	if err != nil {
		t.Fatal(err)
	}
	last := res.Statements[len(res.Statements)-1]
	if !strings.HasPrefix(last, "GRANT") {
		t.Errorf("expected grants last, got %q", res.Statements)
	}
}

func TestMergeRequiresSources(t *testing.T) {
	if _, err := Merge(context.Background(), nil, Options{}); err == nil {
		t.Error("expected an error without sources")
	}
}

func TestDeployRequiresDatabaseTarget(t *testing.T) {
	_, err := Deploy(context.Background(), "CREATE TABLE t (id int);", "CREATE TABLE t (id int);", DeployOptions{})
	if err == nil {
		t.Error("expected an error for a non-database target")
	}
}
