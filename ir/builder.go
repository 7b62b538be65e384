package ir

import (
	"slices"
	"strings"

	"github.com/pgcompose/pgcompose/internal/logger"
)

type builder struct {
	cat     *Catalog
	filter  Filter
	ignored map[QualifiedName]bool
}

// Load parses sql and builds its catalog.
func Load(sql string, opts ...Option) (*Catalog, error) {
	stmts, err := ParseSQL(sql, opts...)
	if err != nil {
		return nil, err
	}
	return Build(stmts, opts...)
}

// Build replays stmts in order and returns the resulting catalog. A later
// CREATE of an existing name replaces the earlier object. ALTER TABLE, ALTER
// POLICY, GRANT and REVOKE on a name not defined by an earlier statement fail
// with *MalformedReferenceError; DROP of an unknown name is a no-op.
func Build(stmts []Statement, opts ...Option) (*Catalog, error) {
	o := newOptions(opts)
	b := &builder{
		cat:     newCatalog(o.schema),
		filter:  o.filter,
		ignored: make(map[QualifiedName]bool),
	}
	for i := range stmts {
		if err := b.apply(&stmts[i]); err != nil {
			return nil, err
		}
	}
	b.cat.finalize()
	logger.Get().Debug("catalog built", "statements", len(stmts), "objects", b.cat.Len())
	return b.cat, nil
}

func (b *builder) apply(s *Statement) error {
	switch s.Kind {
	case StmtCreate:
		b.create(s)
		return nil
	case StmtAlterTable:
		return b.alterTable(s)
	case StmtDrop:
		b.drop(s)
		return nil
	case StmtGrant:
		return b.grant(s)
	case StmtRevoke:
		return b.revoke(s)
	case StmtAlterPolicy:
		return b.alterPolicy(s)
	}
	return nil
}

func (b *builder) skip(kind ObjectKind, name QualifiedName) bool {
	if b.ignored[name] {
		return true
	}
	if b.filter != nil && b.filter.Ignore(kind, name) {
		logger.Get().Debug("ignoring object", "kind", kind, "name", name.String())
		b.ignored[name] = true
		return true
	}
	return false
}

func (b *builder) create(s *Statement) {
	if s.Object == nil {
		return
	}
	name := s.Object.Name()
	if idx, ok := s.Object.(*Index); ok && b.ignored[idx.Table] {
		return
	}
	if pol, ok := s.Object.(*Policy); ok && b.ignored[pol.Table] {
		return
	}
	delete(b.ignored, name)
	if b.skip(s.Object.Kind(), name) {
		return
	}
	if prev, ok := b.cat.objects[name]; ok {
		logger.Get().Debug("redefinition replaces earlier object", "name", name.String(), "previous_ordinal", prev.Ordinal())
	}
	b.cat.objects[name] = WithOrdinal(s.Object, s.Ordinal)
}

func (b *builder) alterTable(s *Statement) error {
	rename := len(s.Alter) == 1 && s.Alter[0].Type == AlterRenameTable
	if b.ignored[s.Target] {
		if rename {
			b.ignored[QualifiedName{Schema: s.Target.Schema, Name: s.Alter[0].NewName}] = true
		}
		return nil
	}
	// ALTER TABLE ... RENAME TO also applies to views.
	if v, ok := b.cat.objects[s.Target].(*View); ok && rename {
		b.renameRelation(v, s.Alter[0].NewName)
		return nil
	}
	t, ok := b.cat.objects[s.Target].(*Table)
	if !ok {
		return &MalformedReferenceError{Statement: s.SQL, Target: s.Target, Kind: s.Kind}
	}
	for _, op := range s.Alter {
		if err := b.alterOp(s, t, op); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) alterOp(s *Statement, t *Table, op AlterOp) error {
	switch op.Type {
	case AlterAddColumn:
		col := *op.Column
		t.Columns = slices.DeleteFunc(t.Columns, func(c *Column) bool { return c.Name == col.Name })
		t.Columns = append(t.Columns, &col)
		renumber(t)
		return nil
	case AlterDropColumn:
		b.dropColumn(t, op.ColumnName)
		return nil
	case AlterAddConstraint:
		c := *op.Constraint
		t.Constraints = slices.DeleteFunc(t.Constraints, func(x *Constraint) bool { return x.Name == c.Name })
		t.Constraints = append(t.Constraints, &c)
		markPrimaryKeyNotNull(t, &c)
		return nil
	case AlterDropConstraint:
		t.Constraints = slices.DeleteFunc(t.Constraints, func(x *Constraint) bool { return x.Name == op.Name })
		return nil
	case AlterRenameConstraint:
		c := t.Constraint(op.Name)
		if c == nil {
			return &MalformedReferenceError{
				Statement: s.SQL,
				Target:    QualifiedName{Schema: t.Ident.Schema, Name: t.Ident.Name + "." + op.Name},
				Kind:      s.Kind,
			}
		}
		c.Name = op.NewName
		return nil
	case AlterRenameTable:
		b.renameRelation(t, op.NewName)
		return nil
	case AlterEnableRowSecurity:
		t.RowSecurity = true
		return nil
	case AlterDisableRowSecurity:
		t.RowSecurity = false
		return nil
	}

	col := t.Column(op.ColumnName)
	if col == nil {
		return &MalformedReferenceError{
			Statement: s.SQL,
			Target:    QualifiedName{Schema: t.Ident.Schema, Name: t.Ident.Name + "." + op.ColumnName},
			Kind:      s.Kind,
		}
	}
	switch op.Type {
	case AlterSetDefault:
		d := *op.Default
		col.Default = &d
	case AlterDropDefault:
		col.Default = nil
	case AlterSetNotNull:
		col.NotNull = true
	case AlterDropNotNull:
		col.NotNull = false
	case AlterColumnType:
		col.Type = op.TypeName
	case AlterRenameColumn:
		b.renameColumn(t, col, op.NewName)
	}
	return nil
}

// renameColumn renames col and every constraint, foreign key and index
// column list that names it.
func (b *builder) renameColumn(t *Table, col *Column, newName string) {
	old := col.Name
	col.Name = newName
	for _, c := range t.Constraints {
		c.Columns = replaceName(c.Columns, old, newName)
	}
	quotedOld, quotedNew := QuoteIdentifier(old), QuoteIdentifier(newName)
	for _, obj := range b.cat.objects {
		switch o := obj.(type) {
		case *Table:
			for _, c := range o.Constraints {
				if c.Type == ConstraintForeignKey && c.RefTable == t.Ident {
					c.RefColumns = replaceName(c.RefColumns, old, newName)
				}
			}
		case *Index:
			if o.Table != t.Ident {
				continue
			}
			cols := make([]string, len(o.Columns))
			for i, c := range o.Columns {
				if c == quotedOld || strings.HasPrefix(c, quotedOld+" ") {
					c = quotedNew + strings.TrimPrefix(c, quotedOld)
				}
				cols[i] = c
			}
			o.Columns = cols
		}
	}
}

func replaceName(names []string, old, newName string) []string {
	out := slices.Clone(names)
	for i, n := range out {
		if n == old {
			out[i] = newName
		}
	}
	return out
}

// renameRelation moves a table or view to a new name in the same schema and
// repoints the indexes, policies, grants, foreign keys and dependency
// references that named it.
func (b *builder) renameRelation(obj SchemaObject, newName string) {
	old := obj.Name()
	renamed := QualifiedName{Schema: old.Schema, Name: newName}
	delete(b.cat.objects, old)
	obj.header().Ident = renamed
	b.cat.objects[renamed] = obj

	rekey := func(key QualifiedName, o SchemaObject, ident QualifiedName) {
		delete(b.cat.objects, key)
		o.header().Ident = ident
		b.cat.objects[ident] = o
	}
	for key, other := range b.cat.objects {
		switch o := other.(type) {
		case *Index:
			if o.Table == old {
				o.Table = renamed
			}
		case *Policy:
			if o.Table == old {
				o.Table = renamed
				rekey(key, o, PolicyKey(renamed, o.Policy))
			}
		case *Grant:
			if o.Target == old {
				o.Target = renamed
				rekey(key, o, grantName(renamed, o.Grantee))
			}
		case *Table:
			for _, c := range o.Constraints {
				if c.Type == ConstraintForeignKey && c.RefTable == old {
					c.RefTable = renamed
				}
			}
		case *View:
			o.Refs = replaceRef(o.Refs, old, renamed)
		case *Function:
			o.Refs = replaceRef(o.Refs, old, renamed)
		}
	}
	if b.filter != nil && b.filter.Ignore(obj.Kind(), renamed) {
		b.ignored[renamed] = true
		b.remove(renamed)
	}
}

func replaceRef(refs []QualifiedName, old, renamed QualifiedName) []QualifiedName {
	if !slices.Contains(refs, old) {
		return refs
	}
	out := slices.Clone(refs)
	for i, r := range out {
		if r == old {
			out[i] = renamed
		}
	}
	return out
}

// dropColumn removes the column together with the constraints and simple
// indexes that involve it, as PostgreSQL does.
func (b *builder) dropColumn(t *Table, name string) {
	t.Columns = slices.DeleteFunc(t.Columns, func(c *Column) bool { return c.Name == name })
	renumber(t)
	t.Constraints = slices.DeleteFunc(t.Constraints, func(c *Constraint) bool {
		return slices.Contains(c.Columns, name)
	})
	for key, obj := range b.cat.objects {
		if idx, ok := obj.(*Index); ok && idx.Table == t.Ident && slices.Contains(idx.Columns, QuoteIdentifier(name)) {
			delete(b.cat.objects, key)
		}
	}
}

func renumber(t *Table) {
	for i, c := range t.Columns {
		c.Position = i + 1
	}
}

// sameKind treats functions and procedures as one namespace.
func sameKind(a, b ObjectKind) bool {
	routine := func(k ObjectKind) bool { return k == KindFunction || k == KindProcedure }
	return a == b || routine(a) && routine(b)
}

func (b *builder) drop(s *Statement) {
	obj, ok := b.cat.objects[s.Target]
	if !ok {
		logger.Get().Debug("DROP of undefined object is a no-op", "kind", s.ObjectKind, "name", s.Target.String())
		return
	}
	if !sameKind(obj.Kind(), s.ObjectKind) {
		logger.Get().Debug("DROP kind does not match object", "name", s.Target.String(), "want", s.ObjectKind, "have", obj.Kind())
		return
	}
	b.remove(s.Target)
}

// remove deletes name together with the indexes, grants and policies that
// cannot exist without it.
func (b *builder) remove(name QualifiedName) {
	delete(b.cat.objects, name)
	for key, other := range b.cat.objects {
		switch o := other.(type) {
		case *Index:
			if o.Table == name {
				delete(b.cat.objects, key)
			}
		case *Grant:
			if o.Target == name {
				delete(b.cat.objects, key)
			}
		case *Policy:
			if o.Table == name {
				delete(b.cat.objects, key)
			}
		}
	}
}

func (b *builder) alterPolicy(s *Statement) error {
	ch := s.Policy
	if b.ignored[ch.Table] {
		return nil
	}
	pol, ok := b.cat.objects[s.Target].(*Policy)
	if !ok {
		return &MalformedReferenceError{Statement: s.SQL, Target: s.Target, Kind: s.Kind}
	}
	if ch.NewName != "" {
		delete(b.cat.objects, s.Target)
		pol.Policy = ch.NewName
		pol.Ident = PolicyKey(pol.Table, ch.NewName)
		b.cat.objects[pol.Ident] = pol
	}
	if ch.Roles != nil {
		pol.Roles = ch.Roles
	}
	if ch.Using != nil {
		pol.Using = *ch.Using
	}
	if ch.WithCheck != nil {
		pol.WithCheck = *ch.WithCheck
	}
	for _, ref := range ch.Refs {
		if !slices.Contains(pol.Refs, ref) {
			pol.Refs = append(slices.Clip(pol.Refs), ref)
		}
	}
	return nil
}

// grantTarget resolves the object a GRANT or REVOKE names.
func (b *builder) grantTarget(s *Statement) (SchemaObject, error) {
	obj, ok := b.cat.objects[s.Target]
	if !ok {
		return nil, &MalformedReferenceError{Statement: s.SQL, Target: s.Target, Kind: s.Kind}
	}
	switch obj.(type) {
	case *Table, *View, *Function:
		return obj, nil
	}
	return nil, &MalformedReferenceError{Statement: s.SQL, Target: s.Target, Kind: s.Kind}
}

func (b *builder) grant(s *Statement) error {
	if b.ignored[s.Target] {
		return nil
	}
	target, err := b.grantTarget(s)
	if err != nil {
		return err
	}
	spec := s.Grant
	kind := KindTable
	var args string
	if f, ok := target.(*Function); ok {
		kind = f.Kind()
		args = f.ArgTypes()
	}
	privs := spec.Privileges
	if privs == nil {
		privs = PrivilegesFor(kind)
	}

	key := grantName(s.Target, spec.Grantee)
	if existing, ok := b.cat.objects[key].(*Grant); ok {
		existing.Privileges = sortPrivileges(kind, append(existing.Privileges, privs...))
		existing.WithGrantOption = existing.WithGrantOption || spec.GrantOption
		return nil
	}
	b.cat.objects[key] = &Grant{
		Header:          Header{Ident: key, Seq: s.Ordinal},
		Target:          s.Target,
		TargetKind:      kind,
		Args:            args,
		Grantee:         spec.Grantee,
		Privileges:      sortPrivileges(kind, privs),
		WithGrantOption: spec.GrantOption,
	}
	return nil
}

func (b *builder) revoke(s *Statement) error {
	if b.ignored[s.Target] {
		return nil
	}
	if _, err := b.grantTarget(s); err != nil {
		return err
	}
	key := grantName(s.Target, s.Grant.Grantee)
	g, ok := b.cat.objects[key].(*Grant)
	if !ok {
		return nil
	}
	// REVOKE GRANT OPTION FOR keeps the privileges themselves.
	if s.Grant.GrantOption {
		g.WithGrantOption = false
		return nil
	}
	if s.Grant.Privileges == nil {
		delete(b.cat.objects, key)
		return nil
	}
	g.Privileges = slices.DeleteFunc(g.Privileges, func(p string) bool {
		return slices.Contains(s.Grant.Privileges, p)
	})
	if len(g.Privileges) == 0 {
		delete(b.cat.objects, key)
	}
	return nil
}
