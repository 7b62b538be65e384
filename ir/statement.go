package ir

import "fmt"

// StatementKind is the top-level form of a parsed statement.
type StatementKind int

const (
	StmtCreate StatementKind = iota
	StmtAlterTable
	StmtDrop
	StmtGrant
	StmtRevoke
	StmtAlterPolicy
)

func (k StatementKind) String() string {
	switch k {
	case StmtCreate:
		return "CREATE"
	case StmtAlterTable:
		return "ALTER TABLE"
	case StmtDrop:
		return "DROP"
	case StmtGrant:
		return "GRANT"
	case StmtRevoke:
		return "REVOKE"
	case StmtAlterPolicy:
		return "ALTER POLICY"
	}
	return fmt.Sprintf("StatementKind(%d)", int(k))
}

// Statement is one parsed top-level statement, already normalized. DROP,
// GRANT and REVOKE statements that name several objects or grantees are split
// into one Statement each.
type Statement struct {
	Kind       StatementKind
	ObjectKind ObjectKind
	Target     QualifiedName
	// Object is set for StmtCreate.
	Object SchemaObject
	// Alter is set for StmtAlterTable.
	Alter []AlterOp
	// Grant is set for StmtGrant and StmtRevoke.
	Grant *GrantSpec
	// Policy is set for StmtAlterPolicy.
	Policy *PolicyChange
	// SQL is the statement text as written in the source.
	SQL     string
	Ordinal int
}

// AlterType enumerates the ALTER TABLE subcommands the builder applies.
type AlterType int

const (
	AlterAddColumn AlterType = iota
	AlterDropColumn
	AlterSetDefault
	AlterDropDefault
	AlterSetNotNull
	AlterDropNotNull
	AlterColumnType
	AlterAddConstraint
	AlterDropConstraint
	AlterRenameColumn
	AlterRenameConstraint
	AlterRenameTable
	AlterEnableRowSecurity
	AlterDisableRowSecurity
)

// AlterOp is a single ALTER TABLE subcommand. ALTER TABLE ... RENAME is
// lowered to one as well.
type AlterOp struct {
	Type       AlterType
	Column     *Column
	ColumnName string
	TypeName   string
	Default    *string
	Constraint *Constraint
	// Name is the constraint of AlterDropConstraint and AlterRenameConstraint.
	Name string
	// NewName is the target name of a rename.
	NewName string
}

// PolicyChange carries the clauses of an ALTER POLICY. Unset fields keep
// their current value.
type PolicyChange struct {
	Table     QualifiedName
	NewName   string
	Roles     []string
	Using     *string
	WithCheck *string
	Refs      []QualifiedName
}

// GrantSpec carries one grantee's part of a GRANT or REVOKE.
type GrantSpec struct {
	TargetKind ObjectKind
	Args       string
	Grantee    string
	// Privileges is nil for ALL PRIVILEGES.
	Privileges  []string
	GrantOption bool
}

// MalformedReferenceError reports a statement that alters or grants on an
// object the source never defined before it.
type MalformedReferenceError struct {
	Statement string
	Target    QualifiedName
	Kind      StatementKind
}

func (e *MalformedReferenceError) Error() string {
	return fmt.Sprintf("%s references undefined object %s: %s", e.Kind, e.Target, e.Statement)
}
