package source

import (
	"context"
	"testing"

	"github.com/pgcompose/pgcompose/internal/diff"
	"github.com/pgcompose/pgcompose/ir"
	"github.com/pgcompose/pgcompose/testutil"
)

func TestDumpMatchesFileSource(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	container := testutil.SetupPostgresContainer(ctx, t)
	defer container.Terminate(ctx, t)

	schema := `
CREATE ROLE app;
CREATE TABLE users (
    id serial PRIMARY KEY,
    email text NOT NULL UNIQUE,
    created_at timestamptz DEFAULT now()
);
CREATE TABLE orders (
    id bigserial PRIMARY KEY,
    user_id integer REFERENCES users (id),
    qty integer CHECK (qty > 0)
);
CREATE INDEX orders_user_idx ON orders (user_id);
CREATE VIEW big_orders AS SELECT id, qty FROM orders WHERE qty > 10;
CREATE FUNCTION order_count(uid integer) RETURNS bigint LANGUAGE sql AS $$ SELECT count(*) FROM orders WHERE user_id = uid $$;
GRANT SELECT, INSERT ON users TO app;
ALTER TABLE orders ENABLE ROW LEVEL SECURITY;
CREATE POLICY own_orders ON orders FOR SELECT TO app USING (user_id = 1);
`
	if _, err := container.Conn.ExecContext(ctx, schema); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}

	dumped, err := Load(ctx, container.DSN, Options{})
	if err != nil {
		t.Fatalf("Load database: %v", err)
	}
	if dumped.Kind != KindDatabase {
		t.Fatalf("kind = %s", dumped.Kind)
	}

	for _, name := range []ir.QualifiedName{
		ir.NewName("", "users"),
		ir.NewName("", "orders"),
		ir.NewName("", "orders_user_idx"),
		ir.NewName("", "big_orders"),
		ir.RoutineName("", "order_count"),
		ir.PolicyKey(ir.NewName("", "orders"), "own_orders"),
	} {
		if !dumped.Catalog.Has(name) {
			t.Errorf("dump is missing %s:\n%s", name, dumped.SQL)
		}
	}
	if obj, _ := dumped.Catalog.Get(ir.NewName("", "orders")); !obj.(*ir.Table).RowSecurity {
		t.Errorf("row level security not dumped:\n%s", dumped.SQL)
	}

	// A second dump of the same database must compare equal.
	again, err := Load(ctx, container.DSN, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if d := diff.Compute(dumped.Catalog, again.Catalog); !d.Empty() {
		t.Errorf("repeated dump differs: %v", d.Keys())
	}
}
