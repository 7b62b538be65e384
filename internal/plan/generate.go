package plan

import (
	"slices"
	"time"

	"github.com/pgcompose/pgcompose/internal/diff"
	"github.com/pgcompose/pgcompose/internal/fingerprint"
	"github.com/pgcompose/pgcompose/internal/logger"
	"github.com/pgcompose/pgcompose/internal/sorter"
	"github.com/pgcompose/pgcompose/ir"
)

type generator struct {
	d    *diff.Diff
	opts Options
	plan *Plan

	added    map[ir.QualifiedName]bool
	removed  map[ir.QualifiedName]bool
	modified map[ir.QualifiedName]*diff.Modification
	// rebuild holds objects present in both catalogs that are dropped and
	// created again instead of altered, with the reason.
	rebuild map[ir.QualifiedName]string
	// regrant holds grants recreated in full because their target is rebuilt.
	regrant map[ir.QualifiedName]bool
}

// Generate builds the migration plan for d. Drops run first in reverse
// dependency order over the source catalog; creates and alters follow in
// dependency order over the target catalog.
func Generate(d *diff.Diff, opts Options) *Plan {
	g := &generator{
		d:        d,
		opts:     opts,
		plan:     &Plan{DryRun: opts.DryRun, CreatedAt: time.Now()},
		added:    make(map[ir.QualifiedName]bool),
		removed:  make(map[ir.QualifiedName]bool),
		modified: make(map[ir.QualifiedName]*diff.Modification),
		rebuild:  make(map[ir.QualifiedName]string),
		regrant:  make(map[ir.QualifiedName]bool),
	}
	for _, o := range d.Added {
		g.added[o.Name()] = true
	}
	for _, o := range d.Removed {
		g.removed[o.Name()] = true
	}
	for _, m := range d.Modified {
		g.modified[m.Name] = m
	}

	g.collectRebuilds()
	g.collectRegrants()
	g.dropConstraints()
	g.dropPhase()
	g.createPhase()
	g.summarize()

	var err error
	if g.plan.SourceFingerprint, err = fingerprint.ComputeFingerprint(d.From); err != nil {
		logger.Get().Debug("source fingerprint failed", "error", err)
	}
	if g.plan.TargetFingerprint, err = fingerprint.ComputeFingerprint(d.To); err != nil {
		logger.Get().Debug("target fingerprint failed", "error", err)
	}

	logger.Get().Debug("plan generated",
		"steps", len(g.plan.Steps),
		"warnings", len(g.plan.Warnings),
		"unsupported", len(g.plan.Unsupported),
		"absorbed", len(g.plan.Absorbed))
	return g.plan
}

func (g *generator) collectRebuilds() {
	destructive := make(map[ir.QualifiedName]bool)
	for _, m := range g.d.Modified {
		switch {
		case m.KindChanged:
			g.rebuild[m.Name] = "object kind changed"
		case m.Function != nil && m.Function.Recreate():
			g.rebuild[m.Name] = "signature changed"
		case m.Table != nil:
			destructive[m.Name] = hasDestructiveColumnChange(m.Table)
		default:
			switch o := m.Old.(type) {
			case *ir.View:
				if o.Materialized {
					g.rebuild[m.Name] = "materialized views have no in-place replace"
				} else if !extendsColumns(o.OutputColumns(), m.New.(*ir.View).OutputColumns()) {
					g.rebuild[m.Name] = "output columns changed"
				}
			case *ir.Index:
				g.rebuild[m.Name] = "index definition changed"
			case *ir.Policy:
				g.rebuild[m.Name] = "policy definition changed"
			}
		}
	}

	// Views, indexes and policies cannot outlive what they are built on:
	// anything that reads from a dropped or rebuilt object is rebuilt as well.
	// Views and policies over a table losing a column or changing a column
	// type block that ALTER too.
	for changed := true; changed; {
		changed = false
		for _, name := range g.d.From.Names() {
			if g.removed[name] || g.rebuild[name] != "" || !g.d.To.Has(name) {
				continue
			}
			obj, _ := g.d.From.Get(name)
			var readsColumns bool
			switch obj.(type) {
			case *ir.View, *ir.Policy:
				readsColumns = true
			case *ir.Index:
			default:
				continue
			}
			for _, dep := range g.d.From.Dependencies(name) {
				if g.removed[dep] || g.rebuild[dep] != "" || (readsColumns && destructive[dep]) {
					g.rebuild[name] = "depends on " + dep.String()
					changed = true
					break
				}
			}
		}
	}
}

// extendsColumns reports whether a view with output columns newCols can
// replace one with oldCols in place: CREATE OR REPLACE VIEW may only append
// columns. Unknown columns are assumed compatible.
func extendsColumns(oldCols, newCols []string) bool {
	if oldCols == nil || newCols == nil {
		return true
	}
	return len(newCols) >= len(oldCols) && slices.Equal(oldCols, newCols[:len(oldCols)])
}

func hasDestructiveColumnChange(td *diff.TableDiff) bool {
	if len(td.DroppedColumns) > 0 {
		return true
	}
	for _, cd := range td.ModifiedColumns {
		if cd.TypeChanged() {
			return true
		}
	}
	return false
}

// collectRegrants marks every target-side grant on a rebuilt object. Dropping
// the object discards its privileges, so they are granted again in full.
func (g *generator) collectRegrants() {
	for name := range g.rebuild {
		for _, gr := range g.d.To.GrantsFor(name) {
			if !g.added[gr.Ident] {
				g.regrant[gr.Ident] = true
			}
		}
	}
}

// dropConstraints removes changed and removed constraints before any object
// is dropped, foreign keys first, so a dropped table or key is never still
// referenced.
func (g *generator) dropConstraints() {
	var fks, others []Step
	for _, name := range g.d.From.Names() {
		m := g.modified[name]
		if m == nil || m.Table == nil || g.rebuild[name] != "" {
			continue
		}
		t := m.Old.(*ir.Table)
		for _, c := range m.Table.DroppedConstraints {
			step := Step{
				SQL:        "ALTER TABLE " + t.Ident.SQL() + " DROP CONSTRAINT " + ir.QuoteIdentifier(c.Name) + ";",
				ObjectKind: ir.KindConstraint,
				Operation:  OpDrop,
				Path:       objectPath(t, c.Name),
				Object:     name,
			}
			if c.Type == ir.ConstraintForeignKey {
				fks = append(fks, step)
			} else {
				others = append(others, step)
			}
		}
	}
	g.plan.Steps = append(g.plan.Steps, fks...)
	g.plan.Steps = append(g.plan.Steps, others...)
}

func (g *generator) dropPhase() {
	var names []ir.QualifiedName
	for _, o := range g.d.Removed {
		names = append(names, o.Name())
	}
	for name := range g.rebuild {
		names = append(names, name)
	}

	res := sorter.Sort(sorter.ItemsFrom(g.d.From, names), sorter.Options{
		Order:   g.opts.Order,
		Grants:  sorter.GrantsInline,
		Reverse: true,
	})
	g.plan.Warnings = append(g.plan.Warnings, res.Warnings...)

	dropping := func(n ir.QualifiedName) bool { return g.removed[n] || g.rebuild[n] != "" }
	for _, name := range res.Order {
		obj, _ := g.d.From.Get(name)
		switch o := obj.(type) {
		case *ir.Grant:
			if dropping(o.Target) {
				g.plan.Absorbed = append(g.plan.Absorbed, name)
				continue
			}
			if g.opts.NoGrants {
				continue
			}
			g.add(obj, OpRevoke, ir.DropSQL(obj))
			continue
		case *ir.Index:
			if dropping(o.Table) {
				g.plan.Absorbed = append(g.plan.Absorbed, name)
				continue
			}
		case *ir.Policy:
			if dropping(o.Table) {
				g.plan.Absorbed = append(g.plan.Absorbed, name)
				continue
			}
		}
		g.add(obj, OpDrop, ir.DropSQL(obj))
	}
}

func (g *generator) createPhase() {
	var names []ir.QualifiedName
	for _, o := range g.d.Added {
		names = append(names, o.Name())
	}
	for _, m := range g.d.Modified {
		if g.rebuild[m.Name] == "" && !g.regrant[m.Name] {
			names = append(names, m.Name)
		}
	}
	for name := range g.rebuild {
		names = append(names, name)
	}
	for name := range g.regrant {
		names = append(names, name)
	}

	res := sorter.Sort(sorter.ItemsFrom(g.d.To, names), sorter.Options{
		Order:  g.opts.Order,
		Grants: g.opts.Grants,
	})
	g.plan.Warnings = append(g.plan.Warnings, res.Warnings...)

	for _, name := range res.Order {
		obj, _ := g.d.To.Get(name)
		if _, ok := obj.(*ir.Grant); ok && g.opts.NoGrants {
			continue
		}
		switch {
		case g.added[name], g.rebuild[name] != "":
			g.create(obj)
		case g.regrant[name]:
			g.add(obj, OpGrant, ir.CreateSQL(obj))
		default:
			g.alter(g.modified[name])
		}
	}
}

func (g *generator) create(obj ir.SchemaObject) {
	op := OpCreate
	if _, ok := obj.(*ir.Grant); ok {
		op = OpGrant
	}
	for i, sql := range ir.CreateStatements(obj) {
		if i > 0 {
			op = OpAlter
		}
		g.add(obj, op, sql)
	}
}

func (g *generator) alter(m *diff.Modification) {
	switch o := m.New.(type) {
	case *ir.Table:
		g.alterTable(m, o)
	case *ir.View, *ir.Function:
		g.add(o, OpReplace, ir.ReplaceSQL(o))
	case *ir.Grant:
		g.alterGrant(m, o)
	case *ir.Index, *ir.Policy:
		// Always rebuilt; unreachable.
	}
}

func (g *generator) alterGrant(m *diff.Modification, gr *ir.Grant) {
	gd := m.Grant
	old := m.Old.(*ir.Grant)
	if len(gd.Removed) > 0 {
		g.add(gr, OpRevoke, ir.RevokeSQL(gr, gd.Removed))
	}
	if gd.GrantOptionChanged && !gr.WithGrantOption {
		var kept []string
		for _, p := range gr.Privileges {
			for _, q := range old.Privileges {
				if p == q {
					kept = append(kept, p)
				}
			}
		}
		if len(kept) > 0 {
			g.add(gr, OpRevoke, ir.RevokeGrantOptionSQL(gr, kept))
		}
	}
	switch {
	case gd.GrantOptionChanged && gr.WithGrantOption:
		g.add(gr, OpGrant, ir.GrantSQL(gr, gr.Privileges, true))
	case len(gd.Added) > 0:
		g.add(gr, OpGrant, ir.GrantSQL(gr, gd.Added, gr.WithGrantOption))
	}
}

func (g *generator) add(obj ir.SchemaObject, op Operation, sql string, sub ...string) {
	kind := obj.Kind()
	if len(sub) > 0 {
		kind = ir.KindColumn
	}
	g.plan.Steps = append(g.plan.Steps, Step{
		SQL:        sql,
		ObjectKind: kind,
		Operation:  op,
		Path:       objectPath(obj, sub...),
		Object:     obj.Name(),
	})
}

func (g *generator) unsupported(name ir.QualifiedName, field, reason string) {
	logger.Get().Debug("unsupported change", "object", name.String(), "field", field, "reason", reason)
	g.plan.Unsupported = append(g.plan.Unsupported, &UnsupportedChangeError{Object: name, Field: field, Reason: reason})
}

// summarize records one ObjectChange per touched catalog entry, in name order.
func (g *generator) summarize() {
	for _, name := range g.d.Keys() {
		var obj ir.SchemaObject
		action := "update"
		switch {
		case g.added[name]:
			obj, _ = g.d.To.Get(name)
			action = "create"
		case g.removed[name]:
			obj, _ = g.d.From.Get(name)
			action = "delete"
		default:
			obj, _ = g.d.To.Get(name)
			if g.rebuild[name] != "" {
				action = "replace"
			}
		}
		g.plan.Changes = append(g.plan.Changes, ObjectChange{Address: objectPath(obj), Type: obj.Kind(), Action: action})
	}
	// Unchanged objects rebuilt as a side effect of another change.
	for _, name := range g.d.Unchanged {
		if g.rebuild[name] == "" {
			continue
		}
		obj, _ := g.d.To.Get(name)
		g.plan.Changes = append(g.plan.Changes, ObjectChange{Address: objectPath(obj), Type: obj.Kind(), Action: "replace"})
	}
}
