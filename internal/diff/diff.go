// Package diff compares two catalogs object by object.
package diff

import (
	"slices"

	"github.com/pgcompose/pgcompose/internal/logger"
	"github.com/pgcompose/pgcompose/ir"
)

// Diff partitions the keys of two catalogs. Every key of either catalog is in
// exactly one of Added, Removed, Modified or Unchanged.
type Diff struct {
	From *ir.Catalog
	To   *ir.Catalog

	Added     []ir.SchemaObject
	Removed   []ir.SchemaObject
	Modified  []*Modification
	Unchanged []ir.QualifiedName
}

// Modification is an object present in both catalogs with unequal definitions.
// At most one of Table, Function and Grant is set, matching the object kind.
// Views, materialized views, indexes and policies carry no field diff: any
// change replaces the whole object.
type Modification struct {
	Name ir.QualifiedName
	Old  ir.SchemaObject
	New  ir.SchemaObject
	// KindChanged is set when the name now denotes a different kind of object,
	// e.g. a table replaced by a view.
	KindChanged bool

	Table    *TableDiff
	Function *FunctionDiff
	Grant    *GrantDiff
}

// GrantDiff is the privilege change for one (target, grantee) pair.
type GrantDiff struct {
	Added              []string
	Removed            []string
	GrantOptionChanged bool
}

// Empty reports whether the catalogs are structurally equal.
func (d *Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Keys returns every name the diff touches, excluding unchanged ones.
func (d *Diff) Keys() []ir.QualifiedName {
	keys := make([]ir.QualifiedName, 0, len(d.Added)+len(d.Removed)+len(d.Modified))
	for _, o := range d.Added {
		keys = append(keys, o.Name())
	}
	for _, o := range d.Removed {
		keys = append(keys, o.Name())
	}
	for _, m := range d.Modified {
		keys = append(keys, m.Name)
	}
	slices.SortFunc(keys, ir.QualifiedName.Compare)
	return keys
}

// Compute compares a against b. Objects are equal when their normalized
// definitions are equal, so formatting and comments never surface.
func Compute(a, b *ir.Catalog) *Diff {
	d := &Diff{From: a, To: b}

	for _, name := range unionNames(a, b) {
		oldObj, inA := a.Get(name)
		newObj, inB := b.Get(name)
		switch {
		case !inA:
			d.Added = append(d.Added, newObj)
		case !inB:
			d.Removed = append(d.Removed, oldObj)
		case oldObj.Kind() == newObj.Kind() && oldObj.Definition() == newObj.Definition():
			d.Unchanged = append(d.Unchanged, name)
		default:
			d.Modified = append(d.Modified, modification(name, oldObj, newObj))
		}
	}

	logger.Get().Debug("catalog diff computed",
		"added", len(d.Added),
		"removed", len(d.Removed),
		"modified", len(d.Modified),
		"unchanged", len(d.Unchanged))
	return d
}

func unionNames(a, b *ir.Catalog) []ir.QualifiedName {
	names := append(a.Names(), b.Names()...)
	slices.SortFunc(names, ir.QualifiedName.Compare)
	return slices.Compact(names)
}

func modification(name ir.QualifiedName, oldObj, newObj ir.SchemaObject) *Modification {
	m := &Modification{Name: name, Old: oldObj, New: newObj}
	if oldObj.Kind() != newObj.Kind() {
		m.KindChanged = true
		return m
	}
	switch o := oldObj.(type) {
	case *ir.Table:
		m.Table = diffTables(o, newObj.(*ir.Table))
	case *ir.Function:
		m.Function = diffFunctions(o, newObj.(*ir.Function))
	case *ir.Grant:
		m.Grant = diffGrants(o, newObj.(*ir.Grant))
	case *ir.View, *ir.Index, *ir.Policy:
	}
	return m
}

func diffGrants(oldGrant, newGrant *ir.Grant) *GrantDiff {
	d := &GrantDiff{GrantOptionChanged: oldGrant.WithGrantOption != newGrant.WithGrantOption}
	for _, p := range newGrant.Privileges {
		if !slices.Contains(oldGrant.Privileges, p) {
			d.Added = append(d.Added, p)
		}
	}
	for _, p := range oldGrant.Privileges {
		if !slices.Contains(newGrant.Privileges, p) {
			d.Removed = append(d.Removed, p)
		}
	}
	return d
}
