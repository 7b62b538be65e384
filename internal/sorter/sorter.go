// Package sorter orders schema objects so that every object follows the
// objects it depends on.
package sorter

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pgcompose/pgcompose/internal/logger"
	"github.com/pgcompose/pgcompose/ir"
)

// Order is the secondary key used between objects with no dependency
// relation.
type Order int

const (
	// OrderDeclaration keeps source order (ordinal, then name).
	OrderDeclaration Order = iota
	// OrderName sorts by case-sensitive qualified name.
	OrderName
)

func (o Order) String() string {
	if o == OrderName {
		return "name"
	}
	return "declaration"
}

// ParseOrder parses "declaration" or "name".
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(s) {
	case "", "declaration":
		return OrderDeclaration, nil
	case "name":
		return OrderName, nil
	}
	return 0, fmt.Errorf("invalid order %q: must be declaration or name", s)
}

// GrantPlacement controls where grants land relative to other objects.
type GrantPlacement int

const (
	// GrantsInline puts each grant right after its target.
	GrantsInline GrantPlacement = iota
	// GrantsAfter puts every grant after all other objects.
	GrantsAfter
	// GrantsBefore puts every grant before all other objects.
	GrantsBefore
)

func (g GrantPlacement) String() string {
	switch g {
	case GrantsAfter:
		return "after"
	case GrantsBefore:
		return "before"
	}
	return "inline"
}

// ParseGrantPlacement parses "inline", "after" or "before".
func ParseGrantPlacement(s string) (GrantPlacement, error) {
	switch strings.ToLower(s) {
	case "", "inline":
		return GrantsInline, nil
	case "after":
		return GrantsAfter, nil
	case "before":
		return GrantsBefore, nil
	}
	return 0, fmt.Errorf("invalid grant placement %q: must be inline, after or before", s)
}

// Options configures Sort.
type Options struct {
	Order  Order
	Grants GrantPlacement
	// Reverse returns dependents before their dependencies, the order drops need.
	Reverse bool
}

// Item is one object to sort.
type Item struct {
	Name    ir.QualifiedName
	Ordinal int
	Grant   bool
	// Target is the object a grant is attached to.
	Target ir.QualifiedName
	// Deps may mention names outside the input; those are ignored.
	Deps []ir.QualifiedName
}

// DependencyCycleWarning reports objects that depend on each other. They are
// emitted in tie-break order and sorting continues.
type DependencyCycleWarning struct {
	Members []ir.QualifiedName
}

func (w *DependencyCycleWarning) Error() string {
	names := make([]string, len(w.Members))
	for i, m := range w.Members {
		names[i] = m.String()
	}
	return "dependency cycle between " + strings.Join(names, ", ")
}

// Result is a total order over the input plus any cycles met on the way.
type Result struct {
	Order    []ir.QualifiedName
	Warnings []*DependencyCycleWarning
}

// ItemsFrom builds sort items for names using the catalog's dependency graph.
func ItemsFrom(cat *ir.Catalog, names []ir.QualifiedName) []Item {
	items := make([]Item, 0, len(names))
	for _, name := range names {
		obj, ok := cat.Get(name)
		if !ok {
			continue
		}
		item := Item{Name: name, Ordinal: obj.Ordinal(), Deps: cat.Dependencies(name)}
		if g, ok := obj.(*ir.Grant); ok {
			item.Grant = true
			item.Target = g.Target
		}
		items = append(items, item)
	}
	return items
}

// Sort orders items topologically with Kahn's algorithm, breaking ties with
// opts.Order and placing grants per opts.Grants. When several items share a
// name, the last one wins.
func Sort(items []Item, opts Options) Result {
	cmp := tieBreak(opts.Order)
	items = dedupe(items)

	present := make(map[ir.QualifiedName]bool, len(items))
	for _, it := range items {
		present[it.Name] = true
	}

	var nodes, grants []*Item
	inline := make(map[ir.QualifiedName][]*Item)
	for i := range items {
		it := &items[i]
		switch {
		case !it.Grant:
			nodes = append(nodes, it)
		case opts.Grants != GrantsInline:
			grants = append(grants, it)
		case present[it.Target] && it.Target != it.Name:
			inline[it.Target] = append(inline[it.Target], it)
		default:
			nodes = append(nodes, it)
		}
	}

	sorted, warnings := kahn(nodes, cmp)

	out := make([]ir.QualifiedName, 0, len(items))
	for _, it := range sorted {
		out = append(out, it.Name)
		attached := inline[it.Name]
		slices.SortFunc(attached, cmp)
		for _, g := range attached {
			out = append(out, g.Name)
		}
	}

	slices.SortFunc(grants, cmp)
	grantNames := make([]ir.QualifiedName, len(grants))
	for i, g := range grants {
		grantNames[i] = g.Name
	}
	switch opts.Grants {
	case GrantsBefore:
		out = append(grantNames, out...)
	case GrantsAfter:
		out = append(out, grantNames...)
	}

	if opts.Reverse {
		slices.Reverse(out)
	}
	return Result{Order: out, Warnings: warnings}
}

// dedupe keeps the last item of each name, in input order.
func dedupe(items []Item) []Item {
	last := make(map[ir.QualifiedName]int, len(items))
	for i, it := range items {
		last[it.Name] = i
	}
	if len(last) == len(items) {
		return items
	}
	out := make([]Item, 0, len(last))
	for i, it := range items {
		if last[it.Name] == i {
			out = append(out, it)
		} else {
			logger.Get().Debug("duplicate sort item replaced", "name", it.Name.String())
		}
	}
	return out
}

func tieBreak(order Order) func(a, b *Item) int {
	if order == OrderName {
		return func(a, b *Item) int { return a.Name.Compare(b.Name) }
	}
	return func(a, b *Item) int {
		if a.Ordinal != b.Ordinal {
			return a.Ordinal - b.Ordinal
		}
		return a.Name.Compare(b.Name)
	}
}

// kahn emits nodes whose dependencies have all been emitted, lowest by cmp
// first. When every remaining node waits on another, the cycle with no
// unmet dependencies outside itself is emitted whole and reported.
func kahn(nodes []*Item, cmp func(a, b *Item) int) ([]*Item, []*DependencyCycleWarning) {
	byName := make(map[ir.QualifiedName]*Item, len(nodes))
	for _, n := range nodes {
		byName[n.Name] = n
	}

	inDegree := make(map[ir.QualifiedName]int, len(nodes))
	dependents := make(map[ir.QualifiedName][]*Item)
	deps := make(map[ir.QualifiedName][]*Item)
	for _, n := range nodes {
		seen := make(map[ir.QualifiedName]bool)
		for _, d := range n.Deps {
			dep, ok := byName[d]
			if !ok || d == n.Name || seen[d] {
				continue
			}
			seen[d] = true
			inDegree[n.Name]++
			dependents[d] = append(dependents[d], n)
			deps[n.Name] = append(deps[n.Name], dep)
		}
	}

	var ready []*Item
	push := func(it *Item) {
		i, _ := slices.BinarySearchFunc(ready, it, cmp)
		ready = slices.Insert(ready, i, it)
	}
	for _, n := range nodes {
		if inDegree[n.Name] == 0 {
			push(n)
		}
	}

	emitted := make(map[ir.QualifiedName]bool, len(nodes))
	out := make([]*Item, 0, len(nodes))
	release := func(n *Item) {
		for _, d := range dependents[n.Name] {
			if emitted[d.Name] {
				continue
			}
			inDegree[d.Name]--
			if inDegree[d.Name] == 0 {
				push(d)
			}
		}
	}

	var warnings []*DependencyCycleWarning
	for len(out) < len(nodes) {
		if len(ready) == 0 {
			members := sourceCycle(nodes, deps, emitted, cmp)
			if len(members) == 0 {
				// Nothing left is reachable; emit the rest in tie-break order.
				for _, n := range slices.SortedFunc(slices.Values(nodes), cmp) {
					if !emitted[n.Name] {
						emitted[n.Name] = true
						out = append(out, n)
					}
				}
				break
			}
			slices.SortFunc(members, cmp)
			w := &DependencyCycleWarning{}
			for _, m := range members {
				emitted[m.Name] = true
				out = append(out, m)
				w.Members = append(w.Members, m.Name)
			}
			logger.Get().Debug("dependency cycle detected", "members", w.Error())
			warnings = append(warnings, w)
			for _, m := range members {
				release(m)
			}
			continue
		}
		n := ready[0]
		ready = ready[1:]
		if emitted[n.Name] {
			continue
		}
		emitted[n.Name] = true
		out = append(out, n)
		release(n)
	}
	return out, warnings
}

// sourceCycle finds the strongly connected components among the nodes not yet
// emitted and returns the one whose members depend on nothing outside it,
// preferring the component holding the lowest member by cmp.
func sourceCycle(nodes []*Item, deps map[ir.QualifiedName][]*Item, emitted map[ir.QualifiedName]bool, cmp func(a, b *Item) int) []*Item {
	var remaining []*Item
	for _, n := range nodes {
		if !emitted[n.Name] {
			remaining = append(remaining, n)
		}
	}
	slices.SortFunc(remaining, cmp)

	// Tarjan's algorithm over the dependency edges.
	index := make(map[ir.QualifiedName]int)
	low := make(map[ir.QualifiedName]int)
	onStack := make(map[ir.QualifiedName]bool)
	component := make(map[ir.QualifiedName]int)
	var stack []*Item
	var components [][]*Item
	next := 0

	var connect func(v *Item)
	connect = func(v *Item) {
		index[v.Name] = next
		low[v.Name] = next
		next++
		stack = append(stack, v)
		onStack[v.Name] = true
		for _, w := range deps[v.Name] {
			if emitted[w.Name] {
				continue
			}
			if _, visited := index[w.Name]; !visited {
				connect(w)
				low[v.Name] = min(low[v.Name], low[w.Name])
			} else if onStack[w.Name] {
				low[v.Name] = min(low[v.Name], index[w.Name])
			}
		}
		if low[v.Name] == index[v.Name] {
			var comp []*Item
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w.Name] = false
				component[w.Name] = len(components)
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			components = append(components, comp)
		}
	}
	for _, v := range remaining {
		if _, visited := index[v.Name]; !visited {
			connect(v)
		}
	}

	var best []*Item
	var bestMin *Item
	for ci, comp := range components {
		closed := true
		for _, m := range comp {
			for _, d := range deps[m.Name] {
				if !emitted[d.Name] && component[d.Name] != ci {
					closed = false
				}
			}
		}
		if !closed {
			continue
		}
		lowest := slices.MinFunc(comp, cmp)
		if bestMin == nil || cmp(lowest, bestMin) < 0 {
			best, bestMin = comp, lowest
		}
	}
	return best
}
