package ir

import (
	"fmt"
	"slices"
	"strings"
)

// ObjectKind tags the variant of a SchemaObject.
type ObjectKind string

const (
	KindTable            ObjectKind = "table"
	KindView             ObjectKind = "view"
	KindMaterializedView ObjectKind = "materialized_view"
	KindFunction         ObjectKind = "function"
	KindProcedure        ObjectKind = "procedure"
	KindIndex            ObjectKind = "index"
	KindConstraint       ObjectKind = "constraint"
	KindColumn           ObjectKind = "column"
	KindGrant            ObjectKind = "grant"
	KindPolicy           ObjectKind = "policy"
)

// SQLKeyword returns the keyword used for the kind in DDL (TABLE, MATERIALIZED VIEW, ...).
func (k ObjectKind) SQLKeyword() string {
	return strings.ToUpper(strings.ReplaceAll(string(k), "_", " "))
}

// SchemaObject is implemented by *Table, *View, *Function, *Index, *Grant and
// *Policy.
// The set is closed: the unexported header method keeps other packages from
// adding variants, so type switches over it stay exhaustive.
type SchemaObject interface {
	Name() QualifiedName
	Kind() ObjectKind
	Ordinal() int
	// Definition is the normalized text compared for structural equality.
	Definition() string
	// References lists every name the object mentions, whether or not it is
	// defined in the same catalog.
	References() []QualifiedName

	header() *Header
}

// Header holds the identity shared by every schema object.
type Header struct {
	Ident QualifiedName `json:"name"`
	Seq   int           `json:"ordinal"`
}

func (h *Header) Name() QualifiedName { return h.Ident }
func (h *Header) Ordinal() int        { return h.Seq }
func (h *Header) header() *Header     { return h }

// Column is a table column. Type carries its modifiers, e.g. numeric(10,2).
type Column struct {
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	NotNull   bool    `json:"not_null,omitempty"`
	Default   *string `json:"default,omitempty"`
	Generated *string `json:"generated,omitempty"`
	Position  int     `json:"position"`
}

// Definition renders the column as it appears inside CREATE TABLE.
func (c *Column) Definition() string {
	var b strings.Builder
	b.WriteString(QuoteIdentifier(c.Name))
	b.WriteString(" ")
	b.WriteString(c.Type)
	if c.Generated != nil {
		fmt.Fprintf(&b, " GENERATED ALWAYS AS (%s) STORED", *c.Generated)
	} else if c.Default != nil && !IsSerialType(c.Type) {
		b.WriteString(" DEFAULT ")
		b.WriteString(*c.Default)
	}
	if c.NotNull && !IsSerialType(c.Type) {
		b.WriteString(" NOT NULL")
	}
	return b.String()
}

// ConstraintType is the kind of a table constraint.
type ConstraintType string

const (
	ConstraintPrimaryKey ConstraintType = "PRIMARY KEY"
	ConstraintUnique     ConstraintType = "UNIQUE"
	ConstraintCheck      ConstraintType = "CHECK"
	ConstraintForeignKey ConstraintType = "FOREIGN KEY"
)

// Constraint is a table-level constraint. Column constraints written inline
// are lifted to this form by the parser.
type Constraint struct {
	Name              string         `json:"name"`
	Type              ConstraintType `json:"type"`
	Columns           []string       `json:"columns,omitempty"`
	Check             string         `json:"check,omitempty"`
	RefTable          QualifiedName  `json:"ref_table,omitzero"`
	RefColumns        []string       `json:"ref_columns,omitempty"`
	OnUpdate          string         `json:"on_update,omitempty"`
	OnDelete          string         `json:"on_delete,omitempty"`
	Deferrable        bool           `json:"deferrable,omitempty"`
	InitiallyDeferred bool           `json:"initially_deferred,omitempty"`
}

// Definition renders the constraint body without its CONSTRAINT name prefix.
func (c *Constraint) Definition() string {
	switch c.Type {
	case ConstraintCheck:
		return "CHECK (" + c.Check + ")"
	case ConstraintForeignKey:
		var b strings.Builder
		fmt.Fprintf(&b, "FOREIGN KEY (%s) REFERENCES %s", quoteList(c.Columns), c.RefTable.SQL())
		if len(c.RefColumns) > 0 {
			fmt.Fprintf(&b, " (%s)", quoteList(c.RefColumns))
		}
		if c.OnUpdate != "" {
			b.WriteString(" ON UPDATE " + c.OnUpdate)
		}
		if c.OnDelete != "" {
			b.WriteString(" ON DELETE " + c.OnDelete)
		}
		if c.Deferrable {
			b.WriteString(" DEFERRABLE")
			if c.InitiallyDeferred {
				b.WriteString(" INITIALLY DEFERRED")
			}
		}
		return b.String()
	default:
		return fmt.Sprintf("%s (%s)", c.Type, quoteList(c.Columns))
	}
}

// Table is an ordinary table. Indexes, grants and policies are separate
// catalog entries; see Catalog.IndexesFor, Catalog.GrantsFor and
// Catalog.PoliciesFor.
type Table struct {
	Header
	Columns     []*Column     `json:"columns"`
	Constraints []*Constraint `json:"constraints,omitempty"`
	RowSecurity bool          `json:"row_security,omitempty"`
}

func (t *Table) Kind() ObjectKind { return KindTable }

// Definition lists the columns in position order followed by the constraints
// sorted by name.
func (t *Table) Definition() string {
	parts := make([]string, 0, len(t.Columns)+len(t.Constraints)+1)
	for _, c := range t.Columns {
		parts = append(parts, c.Definition())
	}
	for _, c := range t.sortedConstraints() {
		parts = append(parts, "CONSTRAINT "+QuoteIdentifier(c.Name)+" "+c.Definition())
	}
	if t.RowSecurity {
		parts = append(parts, "ROW LEVEL SECURITY")
	}
	return strings.Join(parts, ", ")
}

func (t *Table) References() []QualifiedName {
	var refs []QualifiedName
	for _, c := range t.Constraints {
		if c.Type == ConstraintForeignKey {
			refs = append(refs, c.RefTable)
		}
	}
	return refs
}

// Column returns the named column or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Constraint returns the named constraint or nil.
func (t *Table) Constraint(name string) *Constraint {
	for _, c := range t.Constraints {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (t *Table) sortedConstraints() []*Constraint {
	out := slices.Clone(t.Constraints)
	slices.SortFunc(out, func(a, b *Constraint) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// View is a view or, when Materialized is set, a materialized view.
type View struct {
	Header
	Materialized bool            `json:"materialized,omitempty"`
	Columns      []string        `json:"columns,omitempty"`
	Query        string          `json:"query"`
	Refs         []QualifiedName `json:"-"`
	// Outputs are the result column names of Query, nil when a * leaves them
	// unknown until the view is created.
	Outputs []string `json:"-"`
}

// OutputColumns returns the view's column names in order, with explicit
// column names overriding the query's. It returns nil when they are unknown.
func (v *View) OutputColumns() []string {
	if v.Outputs == nil {
		return nil
	}
	out := slices.Clone(v.Outputs)
	for i, c := range v.Columns {
		if i < len(out) {
			out[i] = c
		}
	}
	return out
}

func (v *View) Kind() ObjectKind {
	if v.Materialized {
		return KindMaterializedView
	}
	return KindView
}

func (v *View) Definition() string {
	if len(v.Columns) == 0 {
		return v.Query
	}
	return "(" + quoteList(v.Columns) + ") " + v.Query
}

func (v *View) References() []QualifiedName { return v.Refs }

// Parameter is a function argument.
type Parameter struct {
	Name    string  `json:"name,omitempty"`
	Type    string  `json:"type"`
	Mode    string  `json:"mode"`
	Default *string `json:"default,omitempty"`
}

func (p *Parameter) input() bool { return p.Mode != "OUT" && p.Mode != "TABLE" }

// Function is a function or, when Procedure is set, a procedure. Functions are
// keyed by name alone; a later definition with another signature replaces
// the earlier one.
type Function struct {
	Header
	Procedure       bool            `json:"procedure,omitempty"`
	Params          []*Parameter    `json:"params,omitempty"`
	Returns         string          `json:"returns,omitempty"`
	Language        string          `json:"language"`
	Body            string          `json:"body"`
	NormalizedBody  string          `json:"-"`
	Volatility      string          `json:"volatility,omitempty"`
	Strict          bool            `json:"strict,omitempty"`
	SecurityDefiner bool            `json:"security_definer,omitempty"`
	Refs            []QualifiedName `json:"-"`
}

func (f *Function) Kind() ObjectKind {
	if f.Procedure {
		return KindProcedure
	}
	return KindFunction
}

// ArgTypes is the identity argument list used by DROP and GRANT, e.g. "integer, text".
func (f *Function) ArgTypes() string {
	var parts []string
	for _, p := range f.Params {
		if !p.input() {
			continue
		}
		if p.Mode == "INOUT" || p.Mode == "VARIADIC" {
			parts = append(parts, p.Mode+" "+p.Type)
			continue
		}
		parts = append(parts, p.Type)
	}
	return strings.Join(parts, ", ")
}

// Signature is the full parameter list used in CREATE.
func (f *Function) Signature() string {
	parts := make([]string, 0, len(f.Params))
	for _, p := range f.Params {
		if p.Mode == "TABLE" {
			continue
		}
		var b strings.Builder
		if p.Mode != "" && p.Mode != "IN" {
			b.WriteString(p.Mode + " ")
		}
		if p.Name != "" {
			b.WriteString(QuoteIdentifier(p.Name) + " ")
		}
		b.WriteString(p.Type)
		if p.Default != nil {
			b.WriteString(" DEFAULT " + *p.Default)
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ", ")
}

func (f *Function) Definition() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s)", f.Kind().SQLKeyword(), f.Signature())
	if !f.Procedure {
		b.WriteString(" RETURNS " + f.Returns)
	}
	fmt.Fprintf(&b, " LANGUAGE %s", f.Language)
	if f.Volatility != "" && f.Volatility != "VOLATILE" {
		b.WriteString(" " + f.Volatility)
	}
	if f.Strict {
		b.WriteString(" STRICT")
	}
	if f.SecurityDefiner {
		b.WriteString(" SECURITY DEFINER")
	}
	b.WriteString(" AS " + f.NormalizedBody)
	return b.String()
}

func (f *Function) References() []QualifiedName { return f.Refs }

// Index is a CREATE INDEX on a table.
type Index struct {
	Header
	Table   QualifiedName `json:"table"`
	Unique  bool          `json:"unique,omitempty"`
	Method  string        `json:"method,omitempty"`
	Columns []string      `json:"columns"`
	Where   string        `json:"where,omitempty"`
}

func (i *Index) Kind() ObjectKind { return KindIndex }

// Definition is the normalized CREATE INDEX statement without its trailing
// semicolon.
func (i *Index) Definition() string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if i.Unique {
		b.WriteString("UNIQUE ")
	}
	fmt.Fprintf(&b, "INDEX %s ON %s", QuoteIdentifier(i.Ident.Name), i.Table.SQL())
	if i.Method != "" && i.Method != "btree" {
		b.WriteString(" USING " + i.Method)
	}
	fmt.Fprintf(&b, " (%s)", strings.Join(i.Columns, ", "))
	if i.Where != "" {
		b.WriteString(" WHERE " + i.Where)
	}
	return b.String()
}

func (i *Index) References() []QualifiedName { return []QualifiedName{i.Table} }

// Grant is the set of privileges one grantee holds on one table or routine.
// It is keyed separately from its target so it can be sorted on its own.
type Grant struct {
	Header
	Target     QualifiedName `json:"target"`
	TargetKind ObjectKind    `json:"target_kind"`
	// Args holds the argument types when the target is a routine.
	Args            string   `json:"args,omitempty"`
	Grantee         string   `json:"grantee"`
	Privileges      []string `json:"privileges"`
	WithGrantOption bool     `json:"with_grant_option,omitempty"`
}

func (g *Grant) Kind() ObjectKind { return KindGrant }

func (g *Grant) Definition() string {
	def := strings.Join(g.Privileges, ", ") + " ON " + g.TargetSQL() + " TO " + g.GranteeSQL()
	if g.WithGrantOption {
		def += " WITH GRANT OPTION"
	}
	return def
}

func (g *Grant) References() []QualifiedName { return []QualifiedName{g.Target} }

// TargetSQL renders the ON clause target, e.g. "TABLE t" or "FUNCTION f(integer)".
func (g *Grant) TargetSQL() string {
	switch g.TargetKind {
	case KindFunction, KindProcedure:
		return g.TargetKind.SQLKeyword() + " " + g.Target.SQL() + "(" + g.Args + ")"
	default:
		return "TABLE " + g.Target.SQL()
	}
}

// GranteeSQL renders the grantee, leaving PUBLIC unquoted.
func (g *Grant) GranteeSQL() string { return roleSQL(g.Grantee) }

// roleSQL quotes a role name unless it is one of the role keywords.
func roleSQL(role string) string {
	switch role {
	case "PUBLIC", "CURRENT_USER", "CURRENT_ROLE", "SESSION_USER":
		return role
	}
	return QuoteIdentifier(role)
}

// Policy is a row level security policy on a table. It is keyed under its
// table; see PolicyKey.
type Policy struct {
	Header
	Table       QualifiedName `json:"table"`
	Policy      string        `json:"policy"`
	Restrictive bool          `json:"restrictive,omitempty"`
	// Command is ALL, SELECT, INSERT, UPDATE or DELETE.
	Command string `json:"command"`
	// Roles is sorted; it holds PUBLIC when the policy names no role.
	Roles     []string        `json:"roles"`
	Using     string          `json:"using,omitempty"`
	WithCheck string          `json:"with_check,omitempty"`
	Refs      []QualifiedName `json:"-"`
}

func (p *Policy) Kind() ObjectKind { return KindPolicy }

// Definition is the normalized CREATE POLICY statement without its trailing
// semicolon.
func (p *Policy) Definition() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE POLICY %s ON %s", QuoteIdentifier(p.Policy), p.Table.SQL())
	if p.Restrictive {
		b.WriteString(" AS RESTRICTIVE")
	}
	if p.Command != "" && p.Command != "ALL" {
		b.WriteString(" FOR " + p.Command)
	}
	roles := make([]string, len(p.Roles))
	for i, r := range p.Roles {
		roles[i] = roleSQL(r)
	}
	b.WriteString(" TO " + strings.Join(roles, ", "))
	if p.Using != "" {
		b.WriteString(" USING (" + p.Using + ")")
	}
	if p.WithCheck != "" {
		b.WriteString(" WITH CHECK (" + p.WithCheck + ")")
	}
	return b.String()
}

func (p *Policy) References() []QualifiedName {
	return append([]QualifiedName{p.Table}, p.Refs...)
}

// normalizeRoles sorts and deduplicates roles, defaulting to PUBLIC.
func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return []string{"PUBLIC"}
	}
	out := slices.Clone(roles)
	slices.Sort(out)
	return slices.Compact(out)
}

var (
	tablePrivileges    = []string{"SELECT", "INSERT", "UPDATE", "DELETE", "TRUNCATE", "REFERENCES", "TRIGGER"}
	functionPrivileges = []string{"EXECUTE"}
)

// PrivilegesFor returns the canonical privilege list for a grant target kind,
// which is also the expansion of ALL PRIVILEGES.
func PrivilegesFor(kind ObjectKind) []string {
	switch kind {
	case KindFunction, KindProcedure:
		return slices.Clone(functionPrivileges)
	default:
		return slices.Clone(tablePrivileges)
	}
}

// sortPrivileges orders privs canonically for kind and removes duplicates.
func sortPrivileges(kind ObjectKind, privs []string) []string {
	canon := PrivilegesFor(kind)
	rank := func(p string) int {
		if i := slices.Index(canon, p); i >= 0 {
			return i
		}
		return len(canon)
	}
	out := slices.Clone(privs)
	slices.SortFunc(out, func(a, b string) int {
		if ra, rb := rank(a), rank(b); ra != rb {
			return ra - rb
		}
		return strings.Compare(a, b)
	})
	return slices.Compact(out)
}

// IsSerialType reports whether typ is one of the serial pseudo-types.
func IsSerialType(typ string) bool {
	switch typ {
	case "serial", "bigserial", "smallserial":
		return true
	}
	return false
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdentifier(n)
	}
	return strings.Join(quoted, ", ")
}

// Clone copies obj deeply enough that ALTER TABLE replay and ordinal changes
// on the copy never reach the original.
func Clone(obj SchemaObject) SchemaObject {
	switch o := obj.(type) {
	case *Table:
		c := *o
		c.Columns = make([]*Column, len(o.Columns))
		for i, col := range o.Columns {
			cc := *col
			c.Columns[i] = &cc
		}
		c.Constraints = make([]*Constraint, len(o.Constraints))
		for i, con := range o.Constraints {
			cc := *con
			c.Constraints[i] = &cc
		}
		return &c
	case *View:
		c := *o
		return &c
	case *Function:
		c := *o
		return &c
	case *Index:
		c := *o
		return &c
	case *Grant:
		c := *o
		c.Privileges = slices.Clone(o.Privileges)
		return &c
	case *Policy:
		c := *o
		c.Roles = slices.Clone(o.Roles)
		c.Refs = slices.Clone(o.Refs)
		return &c
	default:
		panic(fmt.Sprintf("ir: unknown schema object %T", obj))
	}
}

// WithOrdinal returns a clone of obj carrying the given ordinal.
func WithOrdinal(obj SchemaObject, ordinal int) SchemaObject {
	c := Clone(obj)
	c.header().Seq = ordinal
	return c
}
