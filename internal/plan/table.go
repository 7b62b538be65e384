package plan

import (
	"fmt"

	"github.com/pgcompose/pgcompose/internal/diff"
	"github.com/pgcompose/pgcompose/ir"
)

// alterTable emits one ALTER TABLE statement per clause: dropped columns,
// added columns, per-column changes, added constraints, then row level
// security. Dropped constraints were already emitted ahead of the drop phase.
func (g *generator) alterTable(m *diff.Modification, t *ir.Table) {
	td := m.Table
	name := t.Ident.SQL()

	if td.Reordered {
		g.unsupported(m.Name, "columns", "column order changed; PostgreSQL can only append columns")
	}

	for _, col := range td.DroppedColumns {
		g.add(t, OpDrop, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", name, ir.QuoteIdentifier(col.Name)), col.Name)
	}
	for _, col := range td.AddedColumns {
		g.add(t, OpCreate, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", name, col.Definition()), col.Name)
	}
	for _, cd := range td.ModifiedColumns {
		g.alterColumn(m.Name, t, cd)
	}
	for _, c := range td.AddedConstraints {
		g.plan.Steps = append(g.plan.Steps, Step{
			SQL:        fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s;", name, ir.QuoteIdentifier(c.Name), c.Definition()),
			ObjectKind: ir.KindConstraint,
			Operation:  OpCreate,
			Path:       objectPath(t, c.Name),
			Object:     t.Ident,
		})
	}
	if td.RowSecurityChanged {
		g.add(t, OpAlter, ir.RowSecuritySQL(t, t.RowSecurity))
	}
}

// alterColumn collapses a column change into the clauses that differ, in the
// order TYPE, NOT NULL, DEFAULT.
func (g *generator) alterColumn(table ir.QualifiedName, t *ir.Table, cd *diff.ColumnDiff) {
	col := ir.QuoteIdentifier(cd.New.Name)
	prefix := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s ", t.Ident.SQL(), col)
	field := "column " + cd.New.Name

	if cd.GeneratedChanged() {
		g.unsupported(table, field, "generation expression changed; the column must be dropped and added again")
	}

	if cd.TypeChanged() {
		if ir.IsSerialType(cd.Old.Type) || ir.IsSerialType(cd.New.Type) {
			g.unsupported(table, field, fmt.Sprintf("type change %s to %s involves a serial pseudo-type", cd.Old.Type, cd.New.Type))
		} else {
			g.add(t, OpAlter, prefix+"TYPE "+cd.New.Type+";", cd.New.Name)
		}
	}

	if cd.NotNullChanged() {
		if cd.New.NotNull {
			g.add(t, OpAlter, prefix+"SET NOT NULL;", cd.New.Name)
		} else {
			g.add(t, OpAlter, prefix+"DROP NOT NULL;", cd.New.Name)
		}
	}

	if cd.DefaultChanged() && cd.New.Generated == nil && !ir.IsSerialType(cd.New.Type) {
		if cd.New.Default == nil {
			g.add(t, OpAlter, prefix+"DROP DEFAULT;", cd.New.Name)
		} else {
			g.add(t, OpAlter, prefix+"SET DEFAULT "+*cd.New.Default+";", cd.New.Name)
		}
	}
}
