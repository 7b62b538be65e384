// Package merge combines schema sources into one catalog and renders it as a
// single dependency-ordered script.
package merge

import (
	"strings"

	"github.com/pgcompose/pgcompose/internal/logger"
	"github.com/pgcompose/pgcompose/internal/sorter"
	"github.com/pgcompose/pgcompose/ir"
)

// Catalogs merges cats into one catalog. When several catalogs define the
// same name, the last one wins with its whole definition. Ordinals are
// rebased so every object of a later catalog follows those of earlier ones.
func Catalogs(cats ...*ir.Catalog) *ir.Catalog {
	var (
		objs   []ir.SchemaObject
		offset int
		schema = "public"
	)
	for i, cat := range cats {
		if cat == nil {
			continue
		}
		if i == 0 {
			schema = cat.DefaultSchema()
		}
		maxOrdinal := -1
		for _, obj := range cat.Objects() {
			objs = append(objs, ir.WithOrdinal(obj, offset+obj.Ordinal()))
			maxOrdinal = max(maxOrdinal, obj.Ordinal())
		}
		offset += maxOrdinal + 1
	}
	merged := ir.Assemble(objs, ir.WithDefaultSchema(schema))
	logger.Get().Debug("merged catalogs", "sources", len(cats), "objects", merged.Len())
	return merged
}

// Result is a merged, ordered script.
type Result struct {
	Catalog    *ir.Catalog
	Order      []ir.QualifiedName
	Statements []string
	Warnings   []*sorter.DependencyCycleWarning
}

// SQL returns the statements separated by blank lines.
func (r *Result) SQL() string {
	if len(r.Statements) == 0 {
		return ""
	}
	return strings.Join(r.Statements, "\n\n") + "\n"
}

// Script merges cats and emits the CREATE form of every object in dependency
// order. A single catalog is simply sorted.
func Script(opts sorter.Options, cats ...*ir.Catalog) *Result {
	cat := Catalogs(cats...)
	opts.Reverse = false
	res := sorter.Sort(sorter.ItemsFrom(cat, cat.Names()), opts)

	out := &Result{Catalog: cat, Order: res.Order, Warnings: res.Warnings}
	for _, name := range res.Order {
		obj, _ := cat.Get(name)
		out.Statements = append(out.Statements, strings.Join(ir.CreateStatements(obj), "\n"))
	}
	return out
}
