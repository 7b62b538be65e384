package ir

import (
	"fmt"
	"strings"
)

// DefaultSchema is the schema assumed for unqualified names.
const DefaultSchema = "public"

// QualifiedName identifies a schema object inside a Catalog. Both parts hold
// normalized identifiers: unquoted names are lower-cased by the parser, quoted
// names keep their exact spelling.
//
// Functions and procedures live in their own namespace, apart from tables,
// views and indexes, so a table and a function may share schema and name.
// Routine marks names in the routine namespace.
type QualifiedName struct {
	Schema  string `json:"schema"`
	Name    string `json:"name"`
	Routine bool   `json:"routine,omitempty"`
}

// NewName returns a QualifiedName, substituting DefaultSchema for an empty schema.
func NewName(schema, name string) QualifiedName {
	if schema == "" {
		schema = DefaultSchema
	}
	return QualifiedName{Schema: schema, Name: name}
}

// RoutineName returns the key of a function or procedure, substituting
// DefaultSchema for an empty schema.
func RoutineName(schema, name string) QualifiedName {
	q := NewName(schema, name)
	q.Routine = true
	return q
}

// String renders the name as schema.name with identifier quoting where needed.
// Routine names carry a trailing "()".
func (q QualifiedName) String() string {
	s := QuoteIdentifier(q.Schema) + "." + QuoteIdentifier(q.Name)
	if q.Routine {
		s += "()"
	}
	return s
}

// SQL renders the name as it appears in generated DDL: objects living in the
// default schema are written unqualified.
func (q QualifiedName) SQL() string {
	if q.Schema == "" || q.Schema == DefaultSchema {
		return QuoteIdentifier(q.Name)
	}
	return QuoteIdentifier(q.Schema) + "." + QuoteIdentifier(q.Name)
}

// Less orders names by schema, then name, using byte-wise comparison. A
// relation sorts before a routine of the same name.
func (q QualifiedName) Less(o QualifiedName) bool {
	if q.Schema != o.Schema {
		return q.Schema < o.Schema
	}
	if q.Name != o.Name {
		return q.Name < o.Name
	}
	return !q.Routine && o.Routine
}

// Compare returns -1, 0 or +1 following Less.
func (q QualifiedName) Compare(o QualifiedName) int {
	switch {
	case q == o:
		return 0
	case q.Less(o):
		return -1
	default:
		return 1
	}
}

// MarshalText lets QualifiedName be used as a JSON object key. Routine names
// end in "()".
func (q QualifiedName) MarshalText() ([]byte, error) {
	s := q.Schema + "." + q.Name
	if q.Routine {
		s += "()"
	}
	return []byte(s), nil
}

// UnmarshalText parses the form produced by MarshalText.
func (q *QualifiedName) UnmarshalText(b []byte) error {
	schema, name, ok := strings.Cut(string(b), ".")
	if !ok {
		return fmt.Errorf("invalid qualified name %q", b)
	}
	name, routine := strings.CutSuffix(name, "()")
	*q = QualifiedName{Schema: schema, Name: name, Routine: routine}
	return nil
}

// grantName builds the catalog key for the grant held by grantee on target.
func grantName(target QualifiedName, grantee string) QualifiedName {
	name := target.Name
	if target.Routine {
		name += "()"
	}
	return QualifiedName{
		Schema: target.Schema,
		Name:   "grant:" + target.Schema + "." + name + ":" + grantee,
	}
}

// PolicyKey builds the catalog key for the policy name on table. Policy names
// are unique per table only.
func PolicyKey(table QualifiedName, name string) QualifiedName {
	return QualifiedName{
		Schema: table.Schema,
		Name:   "policy:" + table.Name + ":" + name,
	}
}
