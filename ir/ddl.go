package ir

import (
	"fmt"
	"strings"
)

const indent = "    "

// CreateSQL renders the statement that creates obj from nothing.
func CreateSQL(obj SchemaObject) string {
	switch o := obj.(type) {
	case *Table:
		return createTable(o)
	case *View:
		return createView(o, false)
	case *Function:
		return createFunction(o, false)
	case *Index:
		return o.Definition() + ";"
	case *Grant:
		return "GRANT " + o.Definition() + ";"
	case *Policy:
		return o.Definition() + ";"
	default:
		panic(fmt.Sprintf("ir: unknown schema object %T", obj))
	}
}

// CreateStatements renders every statement needed to create obj from
// nothing. A table with row level security enabled takes a second statement.
func CreateStatements(obj SchemaObject) []string {
	stmts := []string{CreateSQL(obj)}
	if t, ok := obj.(*Table); ok && t.RowSecurity {
		stmts = append(stmts, RowSecuritySQL(t, true))
	}
	return stmts
}

// RowSecuritySQL renders the ALTER TABLE that enables or disables row level
// security on t.
func RowSecuritySQL(t *Table, enable bool) string {
	verb := "DISABLE"
	if enable {
		verb = "ENABLE"
	}
	return fmt.Sprintf("ALTER TABLE %s %s ROW LEVEL SECURITY;", t.Ident.SQL(), verb)
}

// ReplaceSQL renders the CREATE OR REPLACE form of a view or routine.
// Materialized views have no such form and get plain CREATE.
func ReplaceSQL(obj SchemaObject) string {
	switch o := obj.(type) {
	case *View:
		return createView(o, !o.Materialized)
	case *Function:
		return createFunction(o, true)
	default:
		return CreateSQL(obj)
	}
}

// DropSQL renders the statement that removes obj. For a grant this is the
// matching REVOKE.
func DropSQL(obj SchemaObject) string {
	switch o := obj.(type) {
	case *Table, *View, *Index:
		return fmt.Sprintf("DROP %s %s;", obj.Kind().SQLKeyword(), obj.Name().SQL())
	case *Function:
		return fmt.Sprintf("DROP %s %s(%s);", o.Kind().SQLKeyword(), o.Ident.SQL(), o.ArgTypes())
	case *Grant:
		return RevokeSQL(o, o.Privileges)
	case *Policy:
		return fmt.Sprintf("DROP POLICY %s ON %s;", QuoteIdentifier(o.Policy), o.Table.SQL())
	default:
		panic(fmt.Sprintf("ir: unknown schema object %T", obj))
	}
}

// GrantSQL renders a GRANT of privs on g's target to g's grantee.
func GrantSQL(g *Grant, privs []string, withGrantOption bool) string {
	stmt := fmt.Sprintf("GRANT %s ON %s TO %s", strings.Join(privs, ", "), g.TargetSQL(), g.GranteeSQL())
	if withGrantOption {
		stmt += " WITH GRANT OPTION"
	}
	return stmt + ";"
}

// RevokeSQL renders a REVOKE of privs on g's target from g's grantee.
func RevokeSQL(g *Grant, privs []string) string {
	return fmt.Sprintf("REVOKE %s ON %s FROM %s;", strings.Join(privs, ", "), g.TargetSQL(), g.GranteeSQL())
}

// RevokeGrantOptionSQL renders REVOKE GRANT OPTION FOR privs.
func RevokeGrantOptionSQL(g *Grant, privs []string) string {
	return fmt.Sprintf("REVOKE GRANT OPTION FOR %s ON %s FROM %s;", strings.Join(privs, ", "), g.TargetSQL(), g.GranteeSQL())
}

func createTable(t *Table) string {
	var lines []string
	for _, c := range t.Columns {
		lines = append(lines, indent+c.Definition())
	}
	for _, c := range t.sortedConstraints() {
		lines = append(lines, indent+"CONSTRAINT "+QuoteIdentifier(c.Name)+" "+c.Definition())
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n);", t.Ident.SQL(), strings.Join(lines, ",\n"))
}

func createView(v *View, orReplace bool) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if orReplace {
		b.WriteString("OR REPLACE ")
	}
	fmt.Fprintf(&b, "%s %s", v.Kind().SQLKeyword(), v.Ident.SQL())
	if len(v.Columns) > 0 {
		fmt.Fprintf(&b, " (%s)", quoteList(v.Columns))
	}
	b.WriteString(" AS\n" + v.Query + ";")
	return b.String()
}

func createFunction(f *Function, orReplace bool) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if orReplace {
		b.WriteString("OR REPLACE ")
	}
	fmt.Fprintf(&b, "%s %s(%s)\n", f.Kind().SQLKeyword(), f.Ident.SQL(), f.Signature())
	if !f.Procedure {
		b.WriteString("RETURNS " + f.Returns + "\n")
	}
	b.WriteString("LANGUAGE " + f.Language + "\n")
	if f.Volatility != "" && f.Volatility != "VOLATILE" {
		b.WriteString(f.Volatility + "\n")
	}
	if f.Strict {
		b.WriteString("STRICT\n")
	}
	if f.SecurityDefiner {
		b.WriteString("SECURITY DEFINER\n")
	}
	b.WriteString("AS " + dollarQuote(f.Body) + ";")
	return b.String()
}
