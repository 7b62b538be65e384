package sorter

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pgcompose/pgcompose/ir"
)

func name(n string) ir.QualifiedName { return ir.NewName("", n) }

func names(ns ...string) []ir.QualifiedName {
	out := make([]ir.QualifiedName, len(ns))
	for i, n := range ns {
		out[i] = name(n)
	}
	return out
}

// newItem builds an item at the given declaration position.
func newItem(ordinal int, n string, deps ...string) Item {
	return Item{Name: name(n), Ordinal: ordinal, Deps: names(deps...)}
}

func newGrant(ordinal int, n, target string) Item {
	return Item{Name: name(n), Ordinal: ordinal, Grant: true, Target: name(target), Deps: names(target)}
}

func TestSortHandlesCycles(t *testing.T) {
	items := []Item{
		newItem(0, "a"),
		newItem(1, "b", "a"),
		newItem(2, "c", "b"),
		newItem(3, "x", "y"), // cycle x <-> y
		newItem(4, "y", "x"),
		newItem(5, "z", "y"), // depends on the cycle
	}

	res := Sort(items, Options{})
	if diff := cmp.Diff(names("a", "b", "c", "x", "y", "z"), res.Order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected one cycle warning, got %d", len(res.Warnings))
	}
	if diff := cmp.Diff(names("x", "y"), res.Warnings[0].Members); diff != "" {
		t.Errorf("cycle members mismatch (-want +got):\n%s", diff)
	}
	if got := res.Warnings[0].Error(); got != "dependency cycle between public.x, public.y" {
		t.Errorf("Error() = %q", got)
	}
}

func TestSortSeparateCycles(t *testing.T) {
	items := []Item{
		newItem(0, "r", "s"),
		newItem(1, "s", "r"),
		newItem(2, "p", "q"),
		newItem(3, "q", "p", "s"),
	}

	res := Sort(items, Options{})
	if diff := cmp.Diff(names("r", "s", "p", "q"), res.Order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("expected two cycle warnings, got %d", len(res.Warnings))
	}
	if diff := cmp.Diff(names("p", "q"), res.Warnings[1].Members); diff != "" {
		t.Errorf("second cycle mismatch (-want +got):\n%s", diff)
	}
}

func TestSortTieBreak(t *testing.T) {
	items := []Item{
		newItem(0, "c"),
		newItem(1, "b"),
		newItem(2, "a"),
		newItem(3, "d", "a"),
	}

	tests := []struct {
		order Order
		want  []ir.QualifiedName
	}{
		{OrderDeclaration, names("c", "b", "a", "d")},
		{OrderName, names("a", "b", "c", "d")},
	}
	for _, tt := range tests {
		t.Run(tt.order.String(), func(t *testing.T) {
			res := Sort(items, Options{Order: tt.order})
			if diff := cmp.Diff(tt.want, res.Order); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSortGrantPlacement(t *testing.T) {
	items := []Item{
		newItem(0, "t"),
		newItem(1, "v", "t"),
		newGrant(2, "grant:public.t:app", "t"),
		newGrant(3, "grant:public.v:app", "v"),
		newItem(4, "w"),
	}

	tests := []struct {
		grants GrantPlacement
		want   []ir.QualifiedName
	}{
		{GrantsInline, names("t", "grant:public.t:app", "v", "grant:public.v:app", "w")},
		{GrantsAfter, names("t", "v", "w", "grant:public.t:app", "grant:public.v:app")},
		{GrantsBefore, names("grant:public.t:app", "grant:public.v:app", "t", "v", "w")},
	}
	for _, tt := range tests {
		t.Run(tt.grants.String(), func(t *testing.T) {
			res := Sort(items, Options{Grants: tt.grants})
			if diff := cmp.Diff(tt.want, res.Order); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSortInlineGrantWithoutTarget(t *testing.T) {
	items := []Item{
		newGrant(0, "grant:public.gone:app", "gone"),
		newItem(1, "t"),
	}
	res := Sort(items, Options{Grants: GrantsInline})
	if diff := cmp.Diff(names("grant:public.gone:app", "t"), res.Order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSortDuplicateNames(t *testing.T) {
	items := []Item{
		newItem(0, "a"),
		newItem(1, "b", "a"),
		newItem(2, "a", "c"),
		newItem(3, "c"),
	}

	done := make(chan Result, 1)
	go func() { done <- Sort(items, Options{}) }()

	select {
	case res := <-done:
		if diff := cmp.Diff(names("c", "a", "b"), res.Order); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Sort did not return for duplicate names")
	}
}

func TestSortReverse(t *testing.T) {
	items := []Item{
		newItem(0, "t"),
		newItem(1, "v", "t"),
		newGrant(2, "grant:public.v:app", "v"),
	}
	res := Sort(items, Options{Reverse: true})
	if diff := cmp.Diff(names("grant:public.v:app", "v", "t"), res.Order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSortIgnoresForeignAndSelfEdges(t *testing.T) {
	items := []Item{
		newItem(0, "b", "a", "outside", "b"),
		newItem(1, "a"),
	}
	res := Sort(items, Options{})
	if diff := cmp.Diff(names("a", "b"), res.Order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestSortTopologicalValidity(t *testing.T) {
	items := []Item{
		newItem(0, "orders", "customers", "products"),
		newItem(1, "order_totals", "orders", "order_lines"),
		newItem(2, "order_lines", "orders", "products"),
		newItem(3, "products", "categories"),
		newItem(4, "customers"),
		newItem(5, "categories"),
		newItem(6, "report", "order_totals", "customers"),
	}

	for _, order := range []Order{OrderDeclaration, OrderName} {
		res := Sort(items, Options{Order: order})
		if len(res.Order) != len(items) {
			t.Fatalf("expected %d items, got %d", len(items), len(res.Order))
		}
		pos := make(map[ir.QualifiedName]int, len(res.Order))
		for i, n := range res.Order {
			pos[n] = i
		}
		for _, it := range items {
			for _, d := range it.Deps {
				if pos[d] >= pos[it.Name] {
					t.Errorf("%s order: expected %s before %s in %v", order, d, it.Name, res.Order)
				}
			}
		}
	}
}

func TestItemsFrom(t *testing.T) {
	cat, err := ir.Load(`
CREATE TABLE t (id int);
CREATE VIEW v AS SELECT id FROM t;
GRANT SELECT ON t TO app;`)
	if err != nil {
		t.Fatal(err)
	}

	items := ItemsFrom(cat, cat.Names())
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if !items[2].Grant || items[2].Target != name("t") {
		t.Errorf("expected grant on t, got %+v", items[2])
	}

	res := Sort(items, Options{Grants: GrantsInline})
	want := []ir.QualifiedName{name("t"), items[2].Name, name("v")}
	if diff := cmp.Diff(want, res.Order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestParseOptions(t *testing.T) {
	if o, err := ParseOrder("NAME"); err != nil || o != OrderName {
		t.Errorf("ParseOrder(NAME) = %v, %v", o, err)
	}
	if _, err := ParseOrder("random"); err == nil {
		t.Error("expected error for unknown order")
	}
	if g, err := ParseGrantPlacement("before"); err != nil || g != GrantsBefore {
		t.Errorf("ParseGrantPlacement(before) = %v, %v", g, err)
	}
	if _, err := ParseGrantPlacement("sideways"); err == nil {
		t.Error("expected error for unknown placement")
	}
}
