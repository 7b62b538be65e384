package compose_test

import (
	"context"
	"fmt"
	"log"

	"github.com/pgcompose/pgcompose/compose"
)

// ExampleCompare plans the migration between two inline schemas.
func ExampleCompare() {
	res, err := compose.Compare(context.Background(),
		"CREATE TABLE t (id int, name text);",
		"CREATE TABLE t (id int, name text NOT NULL DEFAULT '');",
		compose.Options{})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Print(res.Plan.SQL())
	// Output:
	// ALTER TABLE t ALTER COLUMN name SET NOT NULL;
	//
	// ALTER TABLE t ALTER COLUMN name SET DEFAULT '';
}

// ExampleSort puts statements in dependency order.
func ExampleSort() {
	res, err := compose.Sort(context.Background(),
		"CREATE VIEW v AS SELECT id FROM t; CREATE TABLE t (id int);",
		compose.Options{})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Print(res.SQL())
	// Output:
	// CREATE TABLE t (
	//     id integer
	// );
	//
	// CREATE VIEW v AS
	// SELECT id FROM t;
}
