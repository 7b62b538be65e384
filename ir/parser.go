package ir

import (
	"fmt"
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/pgcompose/pgcompose/internal/logger"
)

// Option configures parsing and catalog building.
type Option func(*options)

type options struct {
	schema string
	filter Filter
}

// Filter decides which objects a catalog leaves out.
type Filter interface {
	Ignore(kind ObjectKind, name QualifiedName) bool
}

// WithDefaultSchema sets the schema used for unqualified names (default "public").
func WithDefaultSchema(schema string) Option {
	return func(o *options) {
		if schema != "" {
			o.schema = schema
		}
	}
}

// WithFilter drops objects matched by f while building a catalog.
func WithFilter(f Filter) Option {
	return func(o *options) { o.filter = f }
}

func newOptions(opts []Option) *options {
	o := &options{schema: DefaultSchema}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type parser struct {
	schema string
}

// ParseSQL splits sql into statements and converts the ones describing
// tables, views, materialized views, functions, procedures, indexes, grants
// and policies into normalized Statement records. Other statements are
// skipped.
func ParseSQL(sql string, opts ...Option) ([]Statement, error) {
	o := newOptions(opts)
	p := &parser{schema: o.schema}

	chunks, err := pg_query.SplitWithParser(sql, true)
	if err != nil {
		return nil, fmt.Errorf("failed to split SQL statements: %w", err)
	}

	var out []Statement
	for _, chunk := range chunks {
		result, err := pg_query.Parse(chunk)
		if err != nil {
			return nil, fmt.Errorf("pg_query parse error: %w. Statement: %q", err, chunk)
		}
		for _, raw := range result.Stmts {
			if raw.Stmt == nil {
				continue
			}
			stmts, err := p.statement(raw.Stmt)
			if err != nil {
				return nil, fmt.Errorf("%w. Statement: %q", err, chunk)
			}
			for _, s := range stmts {
				s.SQL = chunk
				s.Ordinal = len(out)
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (p *parser) statement(node *pg_query.Node) ([]Statement, error) {
	switch n := node.Node.(type) {
	case *pg_query.Node_CreateStmt:
		t, err := p.createTable(n.CreateStmt)
		if err != nil || t == nil {
			return nil, err
		}
		return []Statement{{Kind: StmtCreate, ObjectKind: KindTable, Target: t.Ident, Object: t}}, nil
	case *pg_query.Node_ViewStmt:
		v, err := p.createView(n.ViewStmt)
		if err != nil {
			return nil, err
		}
		return []Statement{{Kind: StmtCreate, ObjectKind: KindView, Target: v.Ident, Object: v}}, nil
	case *pg_query.Node_CreateTableAsStmt:
		if n.CreateTableAsStmt.Objtype != pg_query.ObjectType_OBJECT_MATVIEW {
			logger.Get().Debug("skipping CREATE TABLE AS", "table", n.CreateTableAsStmt.GetInto().GetRel().GetRelname())
			return nil, nil
		}
		v, err := p.createMaterializedView(n.CreateTableAsStmt)
		if err != nil {
			return nil, err
		}
		return []Statement{{Kind: StmtCreate, ObjectKind: KindMaterializedView, Target: v.Ident, Object: v}}, nil
	case *pg_query.Node_CreateFunctionStmt:
		f, err := p.createFunction(n.CreateFunctionStmt)
		if err != nil {
			return nil, err
		}
		return []Statement{{Kind: StmtCreate, ObjectKind: f.Kind(), Target: f.Ident, Object: f}}, nil
	case *pg_query.Node_IndexStmt:
		idx, err := p.createIndex(n.IndexStmt)
		if err != nil {
			return nil, err
		}
		return []Statement{{Kind: StmtCreate, ObjectKind: KindIndex, Target: idx.Ident, Object: idx}}, nil
	case *pg_query.Node_AlterTableStmt:
		return p.alterTable(n.AlterTableStmt)
	case *pg_query.Node_DropStmt:
		return p.drop(n.DropStmt), nil
	case *pg_query.Node_GrantStmt:
		return p.grant(n.GrantStmt), nil
	case *pg_query.Node_CreatePolicyStmt:
		pol, err := p.createPolicy(n.CreatePolicyStmt)
		if err != nil {
			return nil, err
		}
		return []Statement{{Kind: StmtCreate, ObjectKind: KindPolicy, Target: pol.Ident, Object: pol}}, nil
	case *pg_query.Node_AlterPolicyStmt:
		return p.alterPolicy(n.AlterPolicyStmt)
	case *pg_query.Node_RenameStmt:
		return p.rename(n.RenameStmt), nil
	default:
		logger.Get().Debug("skipping unsupported statement", "type", fmt.Sprintf("%T", n))
		return nil, nil
	}
}

func (p *parser) rangeVarName(rv *pg_query.RangeVar) QualifiedName {
	schema := rv.GetSchemaname()
	if schema == "" {
		schema = p.schema
	}
	return QualifiedName{Schema: schema, Name: rv.GetRelname()}
}

// listName converts a name list (schema, name) into a QualifiedName.
func (p *parser) listName(nodes []*pg_query.Node) QualifiedName {
	parts := stringValues(nodes)
	switch len(parts) {
	case 0:
		return QualifiedName{}
	case 1:
		return QualifiedName{Schema: p.schema, Name: parts[0]}
	default:
		return QualifiedName{Schema: parts[len(parts)-2], Name: parts[len(parts)-1]}
	}
}

// routineName converts a function or procedure name list into its key.
func (p *parser) routineName(nodes []*pg_query.Node) QualifiedName {
	q := p.listName(nodes)
	q.Routine = true
	return q
}

func stringValues(nodes []*pg_query.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if s := n.GetString_(); s != nil {
			out = append(out, s.Sval)
		}
	}
	return out
}

func (p *parser) createTable(stmt *pg_query.CreateStmt) (*Table, error) {
	if stmt.GetRelation().GetRelpersistence() == "t" {
		logger.Get().Debug("skipping temporary table", "table", stmt.Relation.Relname)
		return nil, nil
	}
	name := p.rangeVarName(stmt.Relation)
	t := &Table{Header: Header{Ident: name}}

	for _, elt := range stmt.TableElts {
		switch e := elt.Node.(type) {
		case *pg_query.Node_ColumnDef:
			col, cons, err := p.columnDef(e.ColumnDef, len(t.Columns)+1, name)
			if err != nil {
				return nil, err
			}
			t.Columns = append(t.Columns, col)
			t.Constraints = append(t.Constraints, cons...)
		case *pg_query.Node_Constraint:
			c, err := p.constraint(e.Constraint, name, "")
			if err != nil {
				return nil, err
			}
			if c != nil {
				t.Constraints = append(t.Constraints, c)
			}
		}
	}
	for _, c := range t.Constraints {
		markPrimaryKeyNotNull(t, c)
	}
	return t, nil
}

// markPrimaryKeyNotNull applies the implicit NOT NULL of primary key columns.
func markPrimaryKeyNotNull(t *Table, c *Constraint) {
	if c.Type != ConstraintPrimaryKey {
		return
	}
	for _, name := range c.Columns {
		if col := t.Column(name); col != nil {
			col.NotNull = true
		}
	}
}

// columnDef converts a column definition. Inline PRIMARY KEY, UNIQUE, CHECK
// and REFERENCES clauses come back as table constraints.
func (p *parser) columnDef(def *pg_query.ColumnDef, position int, table QualifiedName) (*Column, []*Constraint, error) {
	col := &Column{
		Name:     def.Colname,
		Type:     formatTypeName(def.TypeName),
		NotNull:  def.IsNotNull,
		Position: position,
	}
	if IsSerialType(col.Type) {
		col.NotNull = true
	}
	if def.RawDefault != nil {
		d, err := deparseDefault(def.RawDefault)
		if err != nil {
			return nil, nil, err
		}
		col.Default = &d
	}

	var constraints []*Constraint
	for _, node := range def.Constraints {
		c := node.GetConstraint()
		if c == nil {
			continue
		}
		switch c.Contype {
		case pg_query.ConstrType_CONSTR_NOTNULL:
			col.NotNull = true
		case pg_query.ConstrType_CONSTR_NULL:
			col.NotNull = false
		case pg_query.ConstrType_CONSTR_DEFAULT:
			d, err := deparseDefault(c.RawExpr)
			if err != nil {
				return nil, nil, err
			}
			col.Default = &d
		case pg_query.ConstrType_CONSTR_GENERATED:
			g, err := deparseExpr(c.RawExpr)
			if err != nil {
				return nil, nil, err
			}
			col.Generated = &g
		case pg_query.ConstrType_CONSTR_IDENTITY:
			col.NotNull = true
		default:
			tc, err := p.constraint(c, table, col.Name)
			if err != nil {
				return nil, nil, err
			}
			if tc != nil {
				constraints = append(constraints, tc)
			}
		}
	}
	return col, constraints, nil
}

// constraint converts a table constraint. column is set for constraints
// written inline on a column definition.
func (p *parser) constraint(c *pg_query.Constraint, table QualifiedName, column string) (*Constraint, error) {
	out := &Constraint{
		Name:              c.Conname,
		Deferrable:        c.Deferrable,
		InitiallyDeferred: c.Initdeferred,
	}
	keys := stringValues(c.Keys)
	if column != "" {
		keys = []string{column}
	}

	switch c.Contype {
	case pg_query.ConstrType_CONSTR_PRIMARY:
		out.Type = ConstraintPrimaryKey
		out.Columns = keys
	case pg_query.ConstrType_CONSTR_UNIQUE:
		out.Type = ConstraintUnique
		out.Columns = keys
	case pg_query.ConstrType_CONSTR_CHECK:
		out.Type = ConstraintCheck
		expr, err := deparseExpr(c.RawExpr)
		if err != nil {
			return nil, err
		}
		out.Check = expr
		if column == "" {
			if ref := firstColumnRef(c.RawExpr); ref != "" {
				out.Columns = []string{ref}
			}
		} else {
			out.Columns = keys
		}
	case pg_query.ConstrType_CONSTR_FOREIGN:
		out.Type = ConstraintForeignKey
		out.Columns = keys
		if column == "" {
			out.Columns = stringValues(c.FkAttrs)
		}
		out.RefTable = p.rangeVarName(c.Pktable)
		out.RefColumns = stringValues(c.PkAttrs)
		out.OnUpdate = referentialAction(c.FkUpdAction)
		out.OnDelete = referentialAction(c.FkDelAction)
	default:
		logger.Get().Debug("skipping unsupported constraint", "table", table.String(), "type", c.Contype.String())
		return nil, nil
	}

	if out.Name == "" {
		out.Name = constraintName(table.Name, out.Type, out.Columns)
	}
	if out.Type == ConstraintCheck && column == "" {
		out.Columns = nil
	}
	return out, nil
}

// constraintName follows PostgreSQL's naming of unnamed constraints.
func constraintName(table string, typ ConstraintType, columns []string) string {
	var suffix string
	switch typ {
	case ConstraintPrimaryKey:
		return table + "_pkey"
	case ConstraintUnique:
		suffix = "key"
	case ConstraintForeignKey:
		suffix = "fkey"
	case ConstraintCheck:
		suffix = "check"
	}
	if len(columns) == 0 {
		return table + "_" + suffix
	}
	return table + "_" + strings.Join(columns, "_") + "_" + suffix
}

func referentialAction(action string) string {
	switch action {
	case "r":
		return "RESTRICT"
	case "c":
		return "CASCADE"
	case "n":
		return "SET NULL"
	case "d":
		return "SET DEFAULT"
	default:
		// "a" is NO ACTION, the default, and is left implicit.
		return ""
	}
}

// formatTypeName renders a type with its modifiers and array bounds.
func formatTypeName(tn *pg_query.TypeName) string {
	if tn == nil || len(tn.Names) == 0 {
		return ""
	}
	name := normalizeTypeName(stringValues(tn.Names))
	if _, builtin := builtinTypes[name]; !builtin {
		parts := stringValues(tn.Names)
		for i := range parts {
			parts[i] = QuoteIdentifier(parts[i])
		}
		name = strings.Join(parts, ".")
	}

	var mods []string
	for _, mod := range tn.Typmods {
		if c := mod.GetAConst(); c != nil {
			if iv := c.GetIval(); iv != nil {
				mods = append(mods, strconv.Itoa(int(iv.Ival)))
			}
		}
	}
	if len(mods) > 0 && name != "interval" {
		name += "(" + strings.Join(mods, ",") + ")"
	}
	for range tn.ArrayBounds {
		name += "[]"
	}
	if tn.Setof {
		name = "SETOF " + name
	}
	return name
}

// builtinTypes is the set of normalized type names written without quoting.
var builtinTypes = func() map[string]struct{} {
	m := map[string]struct{}{}
	for _, v := range typeAliases {
		m[v] = struct{}{}
	}
	for _, v := range []string{
		"text", "numeric", "uuid", "json", "jsonb", "bytea", "date", "time", "timestamp",
		"interval", "inet", "cidr", "macaddr", "macaddr8", "money", "xml", "bit", "tsvector",
		"tsquery", "point", "line", "lseg", "box", "path", "polygon", "circle", "oid",
		"regclass", "record", "void", "trigger", "serial", "bigserial", "smallserial",
		"name", "citext", "anyelement", "anyarray",
	} {
		m[v] = struct{}{}
	}
	return m
}()

func (p *parser) createView(stmt *pg_query.ViewStmt) (*View, error) {
	query, err := deparseStatement(stmt.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize view %s: %w", stmt.View.GetRelname(), err)
	}
	return &View{
		Header:  Header{Ident: p.rangeVarName(stmt.View)},
		Columns: stringValues(stmt.Aliases),
		Query:   query,
		Refs:    queryReferences(stmt.Query, p.schema),
		Outputs: outputColumns(stmt.Query),
	}, nil
}

func (p *parser) createMaterializedView(stmt *pg_query.CreateTableAsStmt) (*View, error) {
	into := stmt.GetInto()
	query, err := deparseStatement(stmt.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize materialized view %s: %w", into.GetRel().GetRelname(), err)
	}
	return &View{
		Header:       Header{Ident: p.rangeVarName(into.GetRel())},
		Materialized: true,
		Columns:      stringValues(into.GetColNames()),
		Query:        query,
		Refs:         queryReferences(stmt.Query, p.schema),
		Outputs:      outputColumns(stmt.Query),
	}, nil
}

func (p *parser) createFunction(stmt *pg_query.CreateFunctionStmt) (*Function, error) {
	f := &Function{
		Header:     Header{Ident: p.routineName(stmt.Funcname)},
		Procedure:  stmt.IsProcedure,
		Language:   "sql",
		Volatility: "VOLATILE",
	}
	for _, node := range stmt.Parameters {
		fp := node.GetFunctionParameter()
		if fp == nil {
			continue
		}
		param := &Parameter{
			Name: fp.Name,
			Type: formatTypeName(fp.ArgType),
			Mode: parameterMode(fp.Mode),
		}
		if fp.Defexpr != nil {
			d, err := deparseExpr(fp.Defexpr)
			if err != nil {
				return nil, err
			}
			param.Default = &d
		}
		f.Params = append(f.Params, param)
	}
	if !f.Procedure {
		f.Returns = returnType(stmt, f.Params)
	}

	for _, node := range stmt.Options {
		def := node.GetDefElem()
		if def == nil {
			continue
		}
		switch def.Defname {
		case "as":
			if list := def.Arg.GetList(); list != nil {
				f.Body = strings.Join(stringValues(list.Items), "\n")
			} else if s := def.Arg.GetString_(); s != nil {
				f.Body = s.Sval
			}
		case "language":
			if s := def.Arg.GetString_(); s != nil {
				f.Language = strings.ToLower(s.Sval)
			}
		case "volatility":
			if s := def.Arg.GetString_(); s != nil {
				f.Volatility = strings.ToUpper(s.Sval)
			}
		case "strict":
			f.Strict = def.Arg == nil || def.Arg.GetBoolean().GetBoolval()
		case "security":
			f.SecurityDefiner = def.Arg.GetBoolean().GetBoolval()
		}
	}
	if stmt.SqlBody != nil && f.Body == "" {
		body, err := deparseStatement(stmt.SqlBody)
		if err == nil {
			f.Body = body
		}
	}
	f.NormalizedBody = NormalizeBody(f.Body)
	f.Refs = routineReferences(f, p.schema)
	return f, nil
}

func parameterMode(m pg_query.FunctionParameterMode) string {
	switch m {
	case pg_query.FunctionParameterMode_FUNC_PARAM_OUT:
		return "OUT"
	case pg_query.FunctionParameterMode_FUNC_PARAM_INOUT:
		return "INOUT"
	case pg_query.FunctionParameterMode_FUNC_PARAM_VARIADIC:
		return "VARIADIC"
	case pg_query.FunctionParameterMode_FUNC_PARAM_TABLE:
		return "TABLE"
	default:
		return "IN"
	}
}

// returnType renders RETURNS, rebuilding TABLE(...) from TABLE parameters.
func returnType(stmt *pg_query.CreateFunctionStmt, params []*Parameter) string {
	if stmt.ReturnType == nil {
		return "void"
	}
	var cols []string
	for _, p := range params {
		if p.Mode == "TABLE" {
			cols = append(cols, QuoteIdentifier(p.Name)+" "+p.Type)
		}
	}
	if len(cols) > 0 {
		return "TABLE(" + strings.Join(cols, ", ") + ")"
	}
	return formatTypeName(stmt.ReturnType)
}

func (p *parser) createIndex(stmt *pg_query.IndexStmt) (*Index, error) {
	table := p.rangeVarName(stmt.Relation)
	idx := &Index{
		Table:  table,
		Unique: stmt.Unique,
		Method: stmt.AccessMethod,
	}
	var names []string
	for _, node := range stmt.IndexParams {
		elem := node.GetIndexElem()
		if elem == nil {
			continue
		}
		var col string
		if elem.Name != "" {
			col = QuoteIdentifier(elem.Name)
			names = append(names, elem.Name)
		} else if elem.Expr != nil {
			expr, err := deparseExpr(elem.Expr)
			if err != nil {
				return nil, err
			}
			col = "(" + expr + ")"
			names = append(names, "expr")
		}
		if len(elem.Opclass) > 0 {
			col += " " + strings.Join(stringValues(elem.Opclass), ".")
		}
		switch elem.Ordering {
		case pg_query.SortByDir_SORTBY_DESC:
			col += " DESC"
		}
		switch elem.NullsOrdering {
		case pg_query.SortByNulls_SORTBY_NULLS_FIRST:
			col += " NULLS FIRST"
		case pg_query.SortByNulls_SORTBY_NULLS_LAST:
			col += " NULLS LAST"
		}
		idx.Columns = append(idx.Columns, col)
	}
	if stmt.WhereClause != nil {
		where, err := deparseExpr(stmt.WhereClause)
		if err != nil {
			return nil, err
		}
		idx.Where = where
	}
	name := stmt.Idxname
	if name == "" {
		name = table.Name + "_" + strings.Join(names, "_") + "_idx"
		if stmt.Unique {
			name = table.Name + "_" + strings.Join(names, "_") + "_key"
		}
	}
	idx.Ident = QualifiedName{Schema: table.Schema, Name: name}
	return idx, nil
}

func (p *parser) alterTable(stmt *pg_query.AlterTableStmt) ([]Statement, error) {
	if stmt.Objtype != pg_query.ObjectType_OBJECT_TABLE {
		logger.Get().Debug("skipping ALTER on non-table relation", "relation", stmt.GetRelation().GetRelname())
		return nil, nil
	}
	table := p.rangeVarName(stmt.Relation)
	var ops []AlterOp
	for _, node := range stmt.Cmds {
		cmd := node.GetAlterTableCmd()
		if cmd == nil {
			continue
		}
		switch cmd.Subtype {
		case pg_query.AlterTableType_AT_AddColumn:
			def := cmd.Def.GetColumnDef()
			if def == nil {
				continue
			}
			col, cons, err := p.columnDef(def, 0, table)
			if err != nil {
				return nil, err
			}
			ops = append(ops, AlterOp{Type: AlterAddColumn, Column: col, ColumnName: col.Name})
			for _, c := range cons {
				ops = append(ops, AlterOp{Type: AlterAddConstraint, Constraint: c})
			}
		case pg_query.AlterTableType_AT_DropColumn:
			ops = append(ops, AlterOp{Type: AlterDropColumn, ColumnName: cmd.Name})
		case pg_query.AlterTableType_AT_ColumnDefault:
			if cmd.Def == nil {
				ops = append(ops, AlterOp{Type: AlterDropDefault, ColumnName: cmd.Name})
				continue
			}
			d, err := deparseDefault(cmd.Def)
			if err != nil {
				return nil, err
			}
			ops = append(ops, AlterOp{Type: AlterSetDefault, ColumnName: cmd.Name, Default: &d})
		case pg_query.AlterTableType_AT_SetNotNull:
			ops = append(ops, AlterOp{Type: AlterSetNotNull, ColumnName: cmd.Name})
		case pg_query.AlterTableType_AT_DropNotNull:
			ops = append(ops, AlterOp{Type: AlterDropNotNull, ColumnName: cmd.Name})
		case pg_query.AlterTableType_AT_AlterColumnType:
			def := cmd.Def.GetColumnDef()
			if def == nil {
				continue
			}
			ops = append(ops, AlterOp{Type: AlterColumnType, ColumnName: cmd.Name, TypeName: formatTypeName(def.TypeName)})
		case pg_query.AlterTableType_AT_AddConstraint:
			c := cmd.Def.GetConstraint()
			if c == nil {
				continue
			}
			tc, err := p.constraint(c, table, "")
			if err != nil {
				return nil, err
			}
			if tc != nil {
				ops = append(ops, AlterOp{Type: AlterAddConstraint, Constraint: tc})
			}
		case pg_query.AlterTableType_AT_DropConstraint:
			ops = append(ops, AlterOp{Type: AlterDropConstraint, Name: cmd.Name})
		case pg_query.AlterTableType_AT_EnableRowSecurity:
			ops = append(ops, AlterOp{Type: AlterEnableRowSecurity})
		case pg_query.AlterTableType_AT_DisableRowSecurity:
			ops = append(ops, AlterOp{Type: AlterDisableRowSecurity})
		default:
			logger.Get().Debug("ignoring ALTER TABLE subcommand", "table", table.String(), "subtype", cmd.Subtype.String())
		}
	}
	return []Statement{{Kind: StmtAlterTable, ObjectKind: KindTable, Target: table, Alter: ops}}, nil
}

var dropKinds = map[pg_query.ObjectType]ObjectKind{
	pg_query.ObjectType_OBJECT_TABLE:     KindTable,
	pg_query.ObjectType_OBJECT_VIEW:      KindView,
	pg_query.ObjectType_OBJECT_MATVIEW:   KindMaterializedView,
	pg_query.ObjectType_OBJECT_FUNCTION:  KindFunction,
	pg_query.ObjectType_OBJECT_PROCEDURE: KindProcedure,
	pg_query.ObjectType_OBJECT_INDEX:     KindIndex,
}

func (p *parser) drop(stmt *pg_query.DropStmt) []Statement {
	if stmt.RemoveType == pg_query.ObjectType_OBJECT_POLICY {
		return p.dropPolicies(stmt)
	}
	kind, ok := dropKinds[stmt.RemoveType]
	if !ok {
		logger.Get().Debug("skipping DROP of unsupported object type", "type", stmt.RemoveType.String())
		return nil
	}
	var out []Statement
	for _, obj := range stmt.Objects {
		var name QualifiedName
		switch {
		case obj.GetObjectWithArgs() != nil:
			name = p.routineName(obj.GetObjectWithArgs().Objname)
		case obj.GetList() != nil:
			name = p.listName(obj.GetList().Items)
		default:
			continue
		}
		name.Routine = kind == KindFunction || kind == KindProcedure
		out = append(out, Statement{Kind: StmtDrop, ObjectKind: kind, Target: name})
	}
	return out
}

// dropPolicies handles DROP POLICY name ON table, whose object is the table
// name list followed by the policy name.
func (p *parser) dropPolicies(stmt *pg_query.DropStmt) []Statement {
	var out []Statement
	for _, obj := range stmt.Objects {
		items := obj.GetList().GetItems()
		if len(items) < 2 {
			continue
		}
		table := p.listName(items[:len(items)-1])
		policy := stringValues(items[len(items)-1:])
		if len(policy) == 0 {
			continue
		}
		out = append(out, Statement{Kind: StmtDrop, ObjectKind: KindPolicy, Target: PolicyKey(table, policy[0])})
	}
	return out
}

// rename lowers ALTER ... RENAME. Table, column and constraint renames become
// ALTER TABLE operations; policy renames become ALTER POLICY.
func (p *parser) rename(stmt *pg_query.RenameStmt) []Statement {
	switch stmt.RenameType {
	case pg_query.ObjectType_OBJECT_TABLE, pg_query.ObjectType_OBJECT_VIEW, pg_query.ObjectType_OBJECT_MATVIEW:
		return []Statement{{
			Kind:       StmtAlterTable,
			ObjectKind: KindTable,
			Target:     p.rangeVarName(stmt.Relation),
			Alter:      []AlterOp{{Type: AlterRenameTable, NewName: stmt.Newname}},
		}}
	case pg_query.ObjectType_OBJECT_COLUMN:
		if stmt.RelationType != pg_query.ObjectType_OBJECT_TABLE {
			break
		}
		return []Statement{{
			Kind:       StmtAlterTable,
			ObjectKind: KindTable,
			Target:     p.rangeVarName(stmt.Relation),
			Alter:      []AlterOp{{Type: AlterRenameColumn, ColumnName: stmt.Subname, NewName: stmt.Newname}},
		}}
	case pg_query.ObjectType_OBJECT_TABCONSTRAINT:
		return []Statement{{
			Kind:       StmtAlterTable,
			ObjectKind: KindTable,
			Target:     p.rangeVarName(stmt.Relation),
			Alter:      []AlterOp{{Type: AlterRenameConstraint, Name: stmt.Subname, NewName: stmt.Newname}},
		}}
	case pg_query.ObjectType_OBJECT_POLICY:
		return []Statement{{
			Kind:       StmtAlterPolicy,
			ObjectKind: KindPolicy,
			Target:     PolicyKey(p.rangeVarName(stmt.Relation), stmt.Subname),
			Policy:     &PolicyChange{Table: p.rangeVarName(stmt.Relation), NewName: stmt.Newname},
		}}
	}
	logger.Get().Debug("skipping unsupported RENAME", "type", stmt.RenameType.String())
	return nil
}

func (p *parser) createPolicy(stmt *pg_query.CreatePolicyStmt) (*Policy, error) {
	table := p.rangeVarName(stmt.Table)
	pol := &Policy{
		Header:      Header{Ident: PolicyKey(table, stmt.PolicyName)},
		Table:       table,
		Policy:      stmt.PolicyName,
		Restrictive: !stmt.Permissive,
		Command:     policyCommand(stmt.CmdName),
		Roles:       normalizeRoles(roleNames(stmt.Roles)),
	}
	var err error
	if pol.Using, err = deparseExpr(stmt.Qual); err != nil {
		return nil, fmt.Errorf("failed to normalize USING of policy %s: %w", stmt.PolicyName, err)
	}
	if pol.WithCheck, err = deparseExpr(stmt.WithCheck); err != nil {
		return nil, fmt.Errorf("failed to normalize WITH CHECK of policy %s: %w", stmt.PolicyName, err)
	}
	pol.Refs = append(queryReferences(stmt.Qual, p.schema), queryReferences(stmt.WithCheck, p.schema)...)
	return pol, nil
}

func (p *parser) alterPolicy(stmt *pg_query.AlterPolicyStmt) ([]Statement, error) {
	table := p.rangeVarName(stmt.Table)
	change := &PolicyChange{Table: table}
	if len(stmt.Roles) > 0 {
		change.Roles = normalizeRoles(roleNames(stmt.Roles))
	}
	if stmt.Qual != nil {
		using, err := deparseExpr(stmt.Qual)
		if err != nil {
			return nil, err
		}
		change.Using = &using
	}
	if stmt.WithCheck != nil {
		check, err := deparseExpr(stmt.WithCheck)
		if err != nil {
			return nil, err
		}
		change.WithCheck = &check
	}
	change.Refs = append(queryReferences(stmt.Qual, p.schema), queryReferences(stmt.WithCheck, p.schema)...)
	return []Statement{{
		Kind:       StmtAlterPolicy,
		ObjectKind: KindPolicy,
		Target:     PolicyKey(table, stmt.PolicyName),
		Policy:     change,
	}}, nil
}

func policyCommand(cmd string) string {
	if cmd == "" {
		return "ALL"
	}
	return strings.ToUpper(cmd)
}

func roleNames(nodes []*pg_query.Node) []string {
	var out []string
	for _, n := range nodes {
		if rs := n.GetRoleSpec(); rs != nil {
			out = append(out, roleName(rs))
		}
	}
	return out
}

func (p *parser) grant(stmt *pg_query.GrantStmt) []Statement {
	if stmt.Targtype != pg_query.GrantTargetType_ACL_TARGET_OBJECT {
		logger.Get().Debug("skipping schema-wide or default grant")
		return nil
	}
	var kind ObjectKind
	switch stmt.Objtype {
	case pg_query.ObjectType_OBJECT_TABLE:
		kind = KindTable
	case pg_query.ObjectType_OBJECT_FUNCTION:
		kind = KindFunction
	case pg_query.ObjectType_OBJECT_PROCEDURE:
		kind = KindProcedure
	default:
		logger.Get().Debug("skipping grant on unsupported object type", "type", stmt.Objtype.String())
		return nil
	}

	var privs []string
	for _, node := range stmt.Privileges {
		ap := node.GetAccessPriv()
		if ap == nil {
			continue
		}
		if len(ap.Cols) > 0 {
			logger.Get().Debug("skipping column-level privilege", "privilege", ap.PrivName)
			continue
		}
		privs = append(privs, strings.ToUpper(ap.PrivName))
	}
	if len(stmt.Privileges) > 0 && len(privs) == 0 {
		return nil
	}

	stmtKind := StmtGrant
	if !stmt.IsGrant {
		stmtKind = StmtRevoke
	}
	var out []Statement
	for _, obj := range stmt.Objects {
		var target QualifiedName
		var args string
		switch {
		case obj.GetRangeVar() != nil:
			target = p.rangeVarName(obj.GetRangeVar())
		case obj.GetObjectWithArgs() != nil:
			owa := obj.GetObjectWithArgs()
			target = p.routineName(owa.Objname)
			var types []string
			for _, a := range owa.Objargs {
				types = append(types, formatTypeName(a.GetTypeName()))
			}
			args = strings.Join(types, ", ")
		default:
			continue
		}
		for _, g := range stmt.Grantees {
			out = append(out, Statement{
				Kind:       stmtKind,
				ObjectKind: KindGrant,
				Target:     target,
				Grant: &GrantSpec{
					TargetKind:  kind,
					Args:        args,
					Grantee:     roleName(g.GetRoleSpec()),
					Privileges:  privs,
					GrantOption: stmt.GrantOption,
				},
			})
		}
	}
	return out
}

func roleName(r *pg_query.RoleSpec) string {
	switch r.GetRoletype() {
	case pg_query.RoleSpecType_ROLESPEC_PUBLIC:
		return "PUBLIC"
	case pg_query.RoleSpecType_ROLESPEC_CURRENT_USER:
		return "CURRENT_USER"
	case pg_query.RoleSpecType_ROLESPEC_CURRENT_ROLE:
		return "CURRENT_ROLE"
	case pg_query.RoleSpecType_ROLESPEC_SESSION_USER:
		return "SESSION_USER"
	default:
		return r.GetRolename()
	}
}
