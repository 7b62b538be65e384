package diff

import (
	"slices"
	"strings"

	"github.com/pgcompose/pgcompose/ir"
)

// TableDiff holds column and constraint changes between two versions of a
// table. Columns are matched by name, never by position. A constraint whose
// definition changed under the same name appears in both Dropped and Added.
type TableDiff struct {
	AddedColumns       []*ir.Column
	DroppedColumns     []*ir.Column
	ModifiedColumns    []*ColumnDiff
	AddedConstraints   []*ir.Constraint
	DroppedConstraints []*ir.Constraint
	// Reordered is set when columns present in both versions appear in a
	// different relative order.
	Reordered bool
	// RowSecurityChanged is set when row level security was enabled or
	// disabled.
	RowSecurityChanged bool
}

// ColumnDiff is a column present in both versions with unequal attributes.
type ColumnDiff struct {
	Old *ir.Column
	New *ir.Column
}

func (c *ColumnDiff) TypeChanged() bool { return c.Old.Type != c.New.Type }

func (c *ColumnDiff) NotNullChanged() bool { return c.Old.NotNull != c.New.NotNull }

func (c *ColumnDiff) DefaultChanged() bool { return !equalPtr(c.Old.Default, c.New.Default) }

func (c *ColumnDiff) GeneratedChanged() bool { return !equalPtr(c.Old.Generated, c.New.Generated) }

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func diffTables(oldTable, newTable *ir.Table) *TableDiff {
	d := &TableDiff{RowSecurityChanged: oldTable.RowSecurity != newTable.RowSecurity}

	var common []string
	for _, col := range oldTable.Columns {
		newCol := newTable.Column(col.Name)
		if newCol == nil {
			d.DroppedColumns = append(d.DroppedColumns, col)
			continue
		}
		common = append(common, col.Name)
		cd := &ColumnDiff{Old: col, New: newCol}
		if cd.TypeChanged() || cd.NotNullChanged() || cd.DefaultChanged() || cd.GeneratedChanged() {
			d.ModifiedColumns = append(d.ModifiedColumns, cd)
		}
	}

	var newOrder []string
	for _, col := range newTable.Columns {
		if oldTable.Column(col.Name) == nil {
			d.AddedColumns = append(d.AddedColumns, col)
			continue
		}
		newOrder = append(newOrder, col.Name)
	}
	d.Reordered = !slices.Equal(common, newOrder)

	for _, con := range oldTable.Constraints {
		match := newTable.Constraint(con.Name)
		if match == nil || match.Definition() != con.Definition() {
			d.DroppedConstraints = append(d.DroppedConstraints, con)
		}
	}
	for _, con := range newTable.Constraints {
		match := oldTable.Constraint(con.Name)
		if match == nil || match.Definition() != con.Definition() {
			d.AddedConstraints = append(d.AddedConstraints, con)
		}
	}

	sortConstraints(d.DroppedConstraints)
	sortConstraints(d.AddedConstraints)
	return d
}

func sortConstraints(cons []*ir.Constraint) {
	slices.SortFunc(cons, func(a, b *ir.Constraint) int { return strings.Compare(a.Name, b.Name) })
}
