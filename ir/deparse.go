package ir

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// deparseStatement renders a statement node in pg_query's canonical form,
// which erases whitespace, comments and redundant quoting.
func deparseStatement(node *pg_query.Node) (string, error) {
	if node == nil {
		return "", nil
	}
	out, err := pg_query.Deparse(&pg_query.ParseResult{
		Stmts: []*pg_query.RawStmt{{Stmt: node}},
	})
	if err != nil {
		return "", fmt.Errorf("deparse failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// deparseExpr renders an expression by wrapping it in a one-column SELECT and
// stripping the SELECT keyword from the result.
func deparseExpr(expr *pg_query.Node) (string, error) {
	if expr == nil {
		return "", nil
	}
	sel := &pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: &pg_query.SelectStmt{
		TargetList:  []*pg_query.Node{{Node: &pg_query.Node_ResTarget{ResTarget: &pg_query.ResTarget{Val: expr}}}},
		Op:          pg_query.SetOperation_SETOP_NONE,
		LimitOption: pg_query.LimitOption_LIMIT_OPTION_DEFAULT,
	}}}
	out, err := deparseStatement(sel)
	if err != nil {
		return "", err
	}
	after, ok := strings.CutPrefix(out, "SELECT ")
	if !ok {
		return "", fmt.Errorf("unexpected deparse output %q", out)
	}
	return after, nil
}

// deparseDefault renders a column default, dropping casts of string literals
// to character types so 'x' and 'x'::text compare equal.
func deparseDefault(expr *pg_query.Node) (string, error) {
	if tc := expr.GetTypeCast(); tc != nil {
		if c := tc.Arg.GetAConst(); c != nil && c.GetSval() != nil {
			switch normalizeTypeName(stringValues(tc.TypeName.GetNames())) {
			case "text", "varchar", "character":
				if len(tc.TypeName.GetTypmods()) == 0 && len(tc.TypeName.GetArrayBounds()) == 0 {
					expr = tc.Arg
				}
			}
		}
	}
	return deparseExpr(expr)
}

// ParseExpr parses and normalizes a standalone SQL expression.
func ParseExpr(expr string) (string, error) {
	res, err := pg_query.Parse("SELECT " + expr)
	if err != nil {
		return "", fmt.Errorf("pg_query parse error: %w. Expression: %q", err, expr)
	}
	if len(res.Stmts) != 1 {
		return "", fmt.Errorf("expected one expression, got %d statements", len(res.Stmts))
	}
	targets := res.Stmts[0].Stmt.GetSelectStmt().GetTargetList()
	if len(targets) != 1 {
		return "", fmt.Errorf("expected one expression in %q", expr)
	}
	return deparseDefault(targets[0].GetResTarget().GetVal())
}

// walk visits msg and every message reachable from it.
func walk(msg protoreflect.Message, visit func(protoreflect.Message)) {
	if msg == nil || !msg.IsValid() {
		return
	}
	visit(msg)
	msg.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		switch {
		case fd.IsMap():
		case fd.IsList() && fd.Message() != nil:
			list := v.List()
			for i := 0; i < list.Len(); i++ {
				walk(list.Get(i).Message(), visit)
			}
		case fd.Message() != nil:
			walk(v.Message(), visit)
		}
		return true
	})
}

// queryReferences collects relations and called functions mentioned by a
// query, leaving out names bound by WITH clauses.
func queryReferences(node *pg_query.Node, defaultSchema string) []QualifiedName {
	if node == nil {
		return nil
	}
	ctes := make(map[string]bool)
	var found []QualifiedName
	walk(node.ProtoReflect(), func(m protoreflect.Message) {
		switch n := m.Interface().(type) {
		case *pg_query.CommonTableExpr:
			ctes[n.Ctename] = true
		case *pg_query.RangeVar:
			schema := n.Schemaname
			if schema == "" {
				schema = defaultSchema
				if ctes[n.Relname] {
					return
				}
			}
			found = append(found, QualifiedName{Schema: schema, Name: n.Relname})
		case *pg_query.FuncCall:
			parts := stringValues(n.Funcname)
			switch len(parts) {
			case 1:
				found = append(found, QualifiedName{Schema: defaultSchema, Name: parts[0], Routine: true})
			case 2:
				found = append(found, QualifiedName{Schema: parts[0], Name: parts[1], Routine: true})
			}
		}
	})

	// CTE names are only known once the whole tree is walked.
	seen := make(map[QualifiedName]bool)
	out := found[:0]
	for _, q := range found {
		if q.Schema == defaultSchema && !q.Routine && ctes[q.Name] {
			continue
		}
		if !seen[q] {
			seen[q] = true
			out = append(out, q)
		}
	}
	return out
}

// routineReferences finds the objects a routine body touches. SQL bodies are
// parsed; other languages fall back to a token scan.
func routineReferences(f *Function, defaultSchema string) []QualifiedName {
	if f.Language == "sql" {
		if res, err := pg_query.Parse(f.Body); err == nil {
			var refs []QualifiedName
			for _, raw := range res.Stmts {
				refs = append(refs, queryReferences(raw.Stmt, defaultSchema)...)
			}
			return refs
		}
	}
	return bodyReferences(f.Body, defaultSchema)
}

// outputColumns names the result columns of a SELECT the way PostgreSQL does
// for the common cases. It returns nil when the target list contains a *.
func outputColumns(node *pg_query.Node) []string {
	sel := node.GetSelectStmt()
	for sel != nil && sel.Op != pg_query.SetOperation_SETOP_NONE {
		sel = sel.Larg
	}
	if sel == nil {
		return nil
	}
	if len(sel.ValuesLists) > 0 {
		n := len(sel.ValuesLists[0].GetList().GetItems())
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("column%d", i+1)
		}
		return out
	}
	out := make([]string, 0, len(sel.TargetList))
	for _, node := range sel.TargetList {
		rt := node.GetResTarget()
		if rt == nil {
			return nil
		}
		if rt.Name != "" {
			out = append(out, rt.Name)
			continue
		}
		name, ok := exprName(rt.Val)
		if !ok {
			return nil
		}
		out = append(out, name)
	}
	return out
}

// exprName is the column name PostgreSQL derives for an unaliased expression.
// ok is false for a * reference.
func exprName(expr *pg_query.Node) (string, bool) {
	switch n := expr.GetNode().(type) {
	case *pg_query.Node_ColumnRef:
		fields := n.ColumnRef.Fields
		if len(fields) == 0 {
			return "?column?", true
		}
		last := fields[len(fields)-1]
		if last.GetAStar() != nil {
			return "", false
		}
		return last.GetString_().GetSval(), true
	case *pg_query.Node_FuncCall:
		parts := stringValues(n.FuncCall.Funcname)
		return parts[len(parts)-1], true
	case *pg_query.Node_TypeCast:
		if name, ok := exprName(n.TypeCast.Arg); ok && name != "?column?" {
			return name, true
		}
		names := stringValues(n.TypeCast.GetTypeName().GetNames())
		if len(names) == 0 {
			return "?column?", true
		}
		return names[len(names)-1], true
	case *pg_query.Node_CaseExpr:
		return "case", true
	case *pg_query.Node_CoalesceExpr:
		return "coalesce", true
	default:
		return "?column?", true
	}
}

func firstColumnRef(expr *pg_query.Node) string {
	if expr == nil {
		return ""
	}
	var name string
	walk(expr.ProtoReflect(), func(m protoreflect.Message) {
		if name != "" {
			return
		}
		if ref, ok := m.Interface().(*pg_query.ColumnRef); ok {
			if fields := stringValues(ref.Fields); len(fields) > 0 {
				name = fields[len(fields)-1]
			}
		}
	})
	return name
}
