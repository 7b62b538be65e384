// Package plan turns a catalog diff into an ordered list of DDL statements.
package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/pgcompose/pgcompose/internal/fingerprint"
	"github.com/pgcompose/pgcompose/internal/sorter"
	"github.com/pgcompose/pgcompose/ir"
)

// Operation is what a step does to its object.
type Operation string

const (
	OpCreate  Operation = "create"
	OpAlter   Operation = "alter"
	OpReplace Operation = "replace"
	OpDrop    Operation = "drop"
	OpGrant   Operation = "grant"
	OpRevoke  Operation = "revoke"
)

// Step is one DDL statement with the object it came from.
type Step struct {
	SQL        string        `json:"sql"`
	ObjectKind ir.ObjectKind `json:"object_type"`
	Operation  Operation     `json:"operation"`
	// Path addresses the object, e.g. "public.users" or "public.users.email".
	Path string `json:"path"`
	// Object is the catalog key that produced the step.
	Object ir.QualifiedName `json:"object"`
}

// UnsupportedChangeError reports a change with no single-statement DDL
// mapping. The rest of the plan is still generated.
type UnsupportedChangeError struct {
	Object ir.QualifiedName `json:"object"`
	Field  string           `json:"field"`
	Reason string           `json:"reason"`
}

func (e *UnsupportedChangeError) Error() string {
	return fmt.Sprintf("unsupported change to %s (%s): %s", e.Object, e.Field, e.Reason)
}

// Options configures Generate.
type Options struct {
	Order  sorter.Order
	Grants sorter.GrantPlacement
	// NoGrants leaves grant changes out of the plan.
	NoGrants bool
	// DryRun only marks the plan. Generation never has side effects.
	DryRun bool
}

// ObjectChange summarizes what happens to one catalog entry.
type ObjectChange struct {
	Address string        `json:"address"`
	Type    ir.ObjectKind `json:"type"`
	Action  string        `json:"action"` // create, update, replace, delete
}

// Plan is the ordered migration from the diff's source to its target.
type Plan struct {
	Steps       []Step
	Changes     []ObjectChange
	Warnings    []*sorter.DependencyCycleWarning
	Unsupported []*UnsupportedChangeError
	// Absorbed lists drops left out because dropping their target removes
	// them, such as grants and indexes on a dropped table.
	Absorbed []ir.QualifiedName

	SourceFingerprint *fingerprint.SchemaFingerprint
	TargetFingerprint *fingerprint.SchemaFingerprint

	DryRun    bool
	CreatedAt time.Time
}

// Empty reports whether the plan has nothing to execute.
func (p *Plan) Empty() bool { return len(p.Steps) == 0 }

// Statements returns the SQL of every step in order.
func (p *Plan) Statements() []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.SQL
	}
	return out
}

// SQL returns only the SQL statements, separated by blank lines.
func (p *Plan) SQL() string {
	if p.Empty() {
		return ""
	}
	return strings.Join(p.Statements(), "\n\n") + "\n"
}

// objectPath renders a step or change address. Grants are addressed by their
// target and grantee.
func objectPath(obj ir.SchemaObject, sub ...string) string {
	base := obj.Name().String()
	switch o := obj.(type) {
	case *ir.Grant:
		base = o.Target.String() + ":" + o.Grantee
	case *ir.Policy:
		base = o.Table.String() + ".policies." + ir.QuoteIdentifier(o.Policy)
	}
	for _, s := range sub {
		base += "." + ir.QuoteIdentifier(s)
	}
	return base
}
