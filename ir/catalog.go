package ir

import (
	"slices"
	"strings"
)

// Catalog is the normalized set of schema objects of one source, keyed by
// QualifiedName, together with the dependency edges between them. A Catalog
// is never modified after Build or Assemble returns it; callers must not
// mutate the objects it hands out.
type Catalog struct {
	defaultSchema string
	objects       map[QualifiedName]SchemaObject
	deps          map[QualifiedName][]QualifiedName
}

func newCatalog(defaultSchema string) *Catalog {
	return &Catalog{
		defaultSchema: defaultSchema,
		objects:       make(map[QualifiedName]SchemaObject),
		deps:          make(map[QualifiedName][]QualifiedName),
	}
}

// Assemble builds a catalog from already parsed objects. When two objects
// share a name, the later one in objs wins.
func Assemble(objs []SchemaObject, opts ...Option) *Catalog {
	o := newOptions(opts)
	c := newCatalog(o.schema)
	for _, obj := range objs {
		c.objects[obj.Name()] = obj
	}
	c.finalize()
	return c
}

// finalize records, for every object, the references that resolve to other
// objects of this catalog.
func (c *Catalog) finalize() {
	c.deps = make(map[QualifiedName][]QualifiedName, len(c.objects))
	for name, obj := range c.objects {
		var deps []QualifiedName
		for _, ref := range obj.References() {
			if ref == name {
				continue
			}
			if _, ok := c.objects[ref]; ok && !slices.Contains(deps, ref) {
				deps = append(deps, ref)
			}
		}
		slices.SortFunc(deps, QualifiedName.Compare)
		c.deps[name] = deps
	}
}

// DefaultSchema is the schema unqualified names resolved to.
func (c *Catalog) DefaultSchema() string { return c.defaultSchema }

// Len returns the number of objects.
func (c *Catalog) Len() int { return len(c.objects) }

// Get returns the object stored under name.
func (c *Catalog) Get(name QualifiedName) (SchemaObject, bool) {
	obj, ok := c.objects[name]
	return obj, ok
}

// Has reports whether name is defined.
func (c *Catalog) Has(name QualifiedName) bool {
	_, ok := c.objects[name]
	return ok
}

// Names returns every key in source order (ordinal, then name).
func (c *Catalog) Names() []QualifiedName {
	names := make([]QualifiedName, 0, len(c.objects))
	for name := range c.objects {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b QualifiedName) int {
		if oa, ob := c.objects[a].Ordinal(), c.objects[b].Ordinal(); oa != ob {
			return oa - ob
		}
		return a.Compare(b)
	})
	return names
}

// Objects returns every object in source order.
func (c *Catalog) Objects() []SchemaObject {
	names := c.Names()
	out := make([]SchemaObject, len(names))
	for i, name := range names {
		out[i] = c.objects[name]
	}
	return out
}

// Dependencies returns the names, defined in this catalog, that name depends on.
func (c *Catalog) Dependencies(name QualifiedName) []QualifiedName {
	return slices.Clone(c.deps[name])
}

// GrantsFor returns the grants attached to target, ordered by grantee.
func (c *Catalog) GrantsFor(target QualifiedName) []*Grant {
	var out []*Grant
	for _, obj := range c.objects {
		if g, ok := obj.(*Grant); ok && g.Target == target {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, func(a, b *Grant) int { return a.Ident.Compare(b.Ident) })
	return out
}

// IndexesFor returns the indexes attached to table, ordered by name.
func (c *Catalog) IndexesFor(table QualifiedName) []*Index {
	var out []*Index
	for _, obj := range c.objects {
		if idx, ok := obj.(*Index); ok && idx.Table == table {
			out = append(out, idx)
		}
	}
	slices.SortFunc(out, func(a, b *Index) int { return a.Ident.Compare(b.Ident) })
	return out
}

// PoliciesFor returns the policies on table, ordered by policy name.
func (c *Catalog) PoliciesFor(table QualifiedName) []*Policy {
	var out []*Policy
	for _, obj := range c.objects {
		if p, ok := obj.(*Policy); ok && p.Table == table {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b *Policy) int { return strings.Compare(a.Policy, b.Policy) })
	return out
}
