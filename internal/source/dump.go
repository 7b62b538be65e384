package source

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"slices"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/pgcompose/pgcompose/internal/logger"
	"golang.org/x/sync/errgroup"
)

const columnsQuery = `
SELECT n.nspname, c.relname, a.attname,
       format_type(a.atttypid, a.atttypmod),
       a.attnotnull,
       pg_get_expr(d.adbin, d.adrelid),
       a.attgenerated::text
FROM pg_attribute a
JOIN pg_class c ON c.oid = a.attrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
WHERE c.relkind IN ('r', 'p')
  AND a.attnum > 0
  AND NOT a.attisdropped
  AND n.nspname = ANY($1)
ORDER BY n.nspname, c.relname, a.attnum`

const constraintsQuery = `
SELECT n.nspname, c.relname, con.conname, con.contype::text, pg_get_constraintdef(con.oid)
FROM pg_constraint con
JOIN pg_class c ON c.oid = con.conrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE con.contype IN ('p', 'u', 'f', 'c')
  AND n.nspname = ANY($1)
ORDER BY n.nspname, c.relname, con.conname`

const viewsQuery = `
SELECT schemaname, viewname, definition, false FROM pg_views WHERE schemaname = ANY($1)
UNION ALL
SELECT schemaname, matviewname, definition, true FROM pg_matviews WHERE schemaname = ANY($1)
ORDER BY 1, 2`

const functionsQuery = `
SELECT n.nspname, p.proname, pg_get_functiondef(p.oid)
FROM pg_proc p
JOIN pg_namespace n ON n.oid = p.pronamespace
WHERE p.prokind IN ('f', 'p')
  AND n.nspname = ANY($1)
  AND NOT EXISTS (SELECT 1 FROM pg_depend d WHERE d.objid = p.oid AND d.deptype = 'e')
ORDER BY n.nspname, p.proname`

const indexesQuery = `
SELECT n.nspname, ic.relname, pg_get_indexdef(ix.indexrelid)
FROM pg_index ix
JOIN pg_class ic ON ic.oid = ix.indexrelid
JOIN pg_namespace n ON n.oid = ic.relnamespace
WHERE n.nspname = ANY($1)
  AND NOT EXISTS (
    SELECT 1 FROM pg_constraint con
    WHERE con.conindid = ix.indexrelid AND con.contype IN ('p', 'u', 'x'))
ORDER BY n.nspname, ic.relname`

const rowSecurityQuery = `
SELECT n.nspname, c.relname
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('r', 'p')
  AND c.relrowsecurity
  AND n.nspname = ANY($1)
ORDER BY n.nspname, c.relname`

const policiesQuery = `
SELECT schemaname, tablename, policyname, permissive = 'PERMISSIVE', cmd,
       array_to_string(roles, ','), qual, with_check
FROM pg_policies
WHERE schemaname = ANY($1)
ORDER BY schemaname, tablename, policyname`

// Owner privileges are implicit and left out.
const grantsQuery = `
SELECT n.nspname, c.relname, '', false,
       CASE WHEN a.grantee = 0 THEN 'PUBLIC' ELSE pg_get_userbyid(a.grantee) END,
       a.privilege_type, a.is_grantable
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
CROSS JOIN LATERAL aclexplode(c.relacl) a
WHERE c.relkind IN ('r', 'p', 'v', 'm')
  AND a.grantee <> c.relowner
  AND n.nspname = ANY($1)
UNION ALL
SELECT n.nspname, p.proname, pg_get_function_identity_arguments(p.oid), p.prokind = 'p',
       CASE WHEN a.grantee = 0 THEN 'PUBLIC' ELSE pg_get_userbyid(a.grantee) END,
       a.privilege_type, a.is_grantable
FROM pg_proc p
JOIN pg_namespace n ON n.oid = p.pronamespace
CROSS JOIN LATERAL aclexplode(p.proacl) a
WHERE p.prokind IN ('f', 'p')
  AND a.grantee <> p.proowner
  AND n.nspname = ANY($1)
ORDER BY 1, 2, 5, 6`

type columnRow struct {
	Schema, Table, Name, Type string
	NotNull                   bool
	Default                   sql.NullString
	Generated                 string
}

type constraintRow struct {
	Schema, Table, Name, Type, Definition string
}

type viewRow struct {
	Schema, Name, Definition string
	Materialized             bool
}

type functionRow struct {
	Schema, Name, Definition string
}

type indexRow struct {
	Schema, Name, Definition string
}

type tableRow struct {
	Schema, Name string
}

type policyRow struct {
	Schema, Table, Name string
	Permissive          bool
	Command, Roles      string
	Using, WithCheck    sql.NullString
}

type grantRow struct {
	Schema, Name, Args string
	Procedure          bool
	Grantee, Privilege string
	Grantable          bool
}

// dumpRows holds everything read from the catalog.
type dumpRows struct {
	columns     []columnRow
	constraints []constraintRow
	views       []viewRow
	functions   []functionRow
	indexes     []indexRow
	rowSecurity []tableRow
	policies    []policyRow
	grants      []grantRow
}

// DumpURL connects to a database and renders the given schemas as DDL.
func DumpURL(ctx context.Context, url string, schemas []string) (string, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return "", fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return "", fmt.Errorf("failed to ping database: %w", err)
	}
	return Dump(ctx, db, schemas)
}

// Dump renders the tables, views, routines, indexes, policies and grants of
// schemas as DDL the parser reads back into an equivalent catalog.
func Dump(ctx context.Context, db *sql.DB, schemas []string) (string, error) {
	var rows dumpRows
	arg := pq.Array(schemas)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return query(ctx, db, "columns", columnsQuery, arg, func(r *sql.Rows) error {
			var c columnRow
			if err := r.Scan(&c.Schema, &c.Table, &c.Name, &c.Type, &c.NotNull, &c.Default, &c.Generated); err != nil {
				return err
			}
			rows.columns = append(rows.columns, c)
			return nil
		})
	})
	g.Go(func() error {
		return query(ctx, db, "constraints", constraintsQuery, arg, func(r *sql.Rows) error {
			var c constraintRow
			if err := r.Scan(&c.Schema, &c.Table, &c.Name, &c.Type, &c.Definition); err != nil {
				return err
			}
			rows.constraints = append(rows.constraints, c)
			return nil
		})
	})
	g.Go(func() error {
		return query(ctx, db, "views", viewsQuery, arg, func(r *sql.Rows) error {
			var v viewRow
			if err := r.Scan(&v.Schema, &v.Name, &v.Definition, &v.Materialized); err != nil {
				return err
			}
			rows.views = append(rows.views, v)
			return nil
		})
	})
	g.Go(func() error {
		return query(ctx, db, "functions", functionsQuery, arg, func(r *sql.Rows) error {
			var f functionRow
			if err := r.Scan(&f.Schema, &f.Name, &f.Definition); err != nil {
				return err
			}
			rows.functions = append(rows.functions, f)
			return nil
		})
	})
	g.Go(func() error {
		return query(ctx, db, "indexes", indexesQuery, arg, func(r *sql.Rows) error {
			var i indexRow
			if err := r.Scan(&i.Schema, &i.Name, &i.Definition); err != nil {
				return err
			}
			rows.indexes = append(rows.indexes, i)
			return nil
		})
	})
	g.Go(func() error {
		return query(ctx, db, "row security", rowSecurityQuery, arg, func(r *sql.Rows) error {
			var t tableRow
			if err := r.Scan(&t.Schema, &t.Name); err != nil {
				return err
			}
			rows.rowSecurity = append(rows.rowSecurity, t)
			return nil
		})
	})
	g.Go(func() error {
		return query(ctx, db, "policies", policiesQuery, arg, func(r *sql.Rows) error {
			var p policyRow
			if err := r.Scan(&p.Schema, &p.Table, &p.Name, &p.Permissive, &p.Command, &p.Roles, &p.Using, &p.WithCheck); err != nil {
				return err
			}
			rows.policies = append(rows.policies, p)
			return nil
		})
	})
	g.Go(func() error {
		return query(ctx, db, "grants", grantsQuery, arg, func(r *sql.Rows) error {
			var gr grantRow
			if err := r.Scan(&gr.Schema, &gr.Name, &gr.Args, &gr.Procedure, &gr.Grantee, &gr.Privilege, &gr.Grantable); err != nil {
				return err
			}
			rows.grants = append(rows.grants, gr)
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return "", err
	}
	return rows.render(), nil
}

// query runs q and hands each row to scan. Every query writes to its own
// slice, so the callers need no locking.
func query(ctx context.Context, db *sql.DB, name, q string, arg any, scan func(*sql.Rows) error) error {
	r, err := db.QueryContext(ctx, q, arg)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	defer r.Close()
	n := 0
	for r.Next() {
		if err := scan(r); err != nil {
			return fmt.Errorf("failed to scan %s: %w", name, err)
		}
		n++
	}
	logger.Get().Debug("dumped catalog rows", "kind", name, "rows", n)
	return r.Err()
}

var nextvalRegex = regexp.MustCompile(`^nextval\('[^']+'::regclass\)$`)

var serialTypes = map[string]string{
	"smallint": "smallserial",
	"integer":  "serial",
	"bigint":   "bigserial",
}

func qualified(schema, name string) string {
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(name)
}

// render emits tables with their constraints and row level security, then
// views, routines, indexes, policies and grants. Foreign keys stay inline; the
// catalog orders them.
func (d *dumpRows) render() string {
	var stmts []string

	type tableKey struct{ schema, name string }
	var tables []tableKey
	cols := make(map[tableKey][]columnRow)
	for _, c := range d.columns {
		k := tableKey{c.Schema, c.Table}
		if _, ok := cols[k]; !ok {
			tables = append(tables, k)
		}
		cols[k] = append(cols[k], c)
	}
	cons := make(map[tableKey][]constraintRow)
	for _, c := range d.constraints {
		k := tableKey{c.Schema, c.Table}
		cons[k] = append(cons[k], c)
	}

	for _, k := range tables {
		var lines []string
		for _, c := range cols[k] {
			lines = append(lines, "    "+renderColumn(c))
		}
		for _, c := range cons[k] {
			lines = append(lines, "    CONSTRAINT "+pq.QuoteIdentifier(c.Name)+" "+c.Definition)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (\n%s\n);", qualified(k.schema, k.name), strings.Join(lines, ",\n")))
	}
	for _, t := range d.rowSecurity {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY;", qualified(t.Schema, t.Name)))
	}

	for _, v := range d.views {
		kw := "VIEW"
		if v.Materialized {
			kw = "MATERIALIZED VIEW"
		}
		body := strings.TrimSuffix(strings.TrimSpace(v.Definition), ";")
		stmts = append(stmts, fmt.Sprintf("CREATE %s %s AS\n%s;", kw, qualified(v.Schema, v.Name), body))
	}

	for _, f := range d.functions {
		stmts = append(stmts, strings.TrimSpace(f.Definition)+";")
	}

	for _, i := range d.indexes {
		stmts = append(stmts, i.Definition+";")
	}

	for _, p := range d.policies {
		stmts = append(stmts, renderPolicy(p))
	}

	stmts = append(stmts, renderGrants(d.grants)...)
	return strings.Join(stmts, "\n\n") + "\n"
}

func renderPolicy(p policyRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE POLICY %s ON %s", pq.QuoteIdentifier(p.Name), qualified(p.Schema, p.Table))
	if !p.Permissive {
		b.WriteString(" AS RESTRICTIVE")
	}
	b.WriteString(" FOR " + p.Command)
	var roles []string
	for _, r := range strings.Split(p.Roles, ",") {
		if r == "public" {
			roles = append(roles, "PUBLIC")
		} else if r != "" {
			roles = append(roles, pq.QuoteIdentifier(r))
		}
	}
	if len(roles) > 0 {
		b.WriteString(" TO " + strings.Join(roles, ", "))
	}
	if p.Using.Valid {
		b.WriteString(" USING (" + p.Using.String + ")")
	}
	if p.WithCheck.Valid {
		b.WriteString(" WITH CHECK (" + p.WithCheck.String + ")")
	}
	return b.String() + ";"
}

func renderColumn(c columnRow) string {
	typ := c.Type
	var parts []string
	switch {
	case c.Generated == "s" && c.Default.Valid:
		parts = append(parts, fmt.Sprintf("GENERATED ALWAYS AS (%s) STORED", c.Default.String))
	case c.Default.Valid && nextvalRegex.MatchString(c.Default.String) && serialTypes[typ] != "":
		typ = serialTypes[typ]
	case c.Default.Valid:
		parts = append(parts, "DEFAULT "+c.Default.String)
	}
	if c.NotNull && !strings.HasSuffix(typ, "serial") {
		parts = append(parts, "NOT NULL")
	}
	return strings.TrimSpace(pq.QuoteIdentifier(c.Name) + " " + typ + " " + strings.Join(parts, " "))
}

// renderGrants folds the per-privilege rows into one GRANT per object,
// grantee and grant option.
func renderGrants(rows []grantRow) []string {
	type grantKey struct {
		schema, name, args, grantee string
		procedure, grantable        bool
	}
	var keys []grantKey
	privs := make(map[grantKey][]string)
	for _, r := range rows {
		k := grantKey{r.Schema, r.Name, r.Args, r.Grantee, r.Procedure, r.Grantable}
		if _, ok := privs[k]; !ok {
			keys = append(keys, k)
		}
		privs[k] = append(privs[k], r.Privilege)
	}

	var out []string
	for _, k := range keys {
		p := privs[k]
		slices.Sort(p)
		target := "TABLE " + qualified(k.schema, k.name)
		if k.args != "" || isRoutineGrant(p) {
			kw := "FUNCTION"
			if k.procedure {
				kw = "PROCEDURE"
			}
			target = fmt.Sprintf("%s %s(%s)", kw, qualified(k.schema, k.name), k.args)
		}
		grantee := k.grantee
		if grantee != "PUBLIC" {
			grantee = pq.QuoteIdentifier(grantee)
		}
		stmt := fmt.Sprintf("GRANT %s ON %s TO %s", strings.Join(p, ", "), target, grantee)
		if k.grantable {
			stmt += " WITH GRANT OPTION"
		}
		out = append(out, stmt+";")
	}
	return out
}

func isRoutineGrant(privs []string) bool {
	return len(privs) == 1 && privs[0] == "EXECUTE"
}
