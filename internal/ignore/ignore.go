// Package ignore filters schema objects out of catalogs by name pattern.
package ignore

import (
	"path/filepath"
	"strings"

	"github.com/pgcompose/pgcompose/ir"
)

// Config holds glob patterns per object kind. A pattern containing a dot is
// matched against schema.name, any other against the bare name. Patterns
// starting with ! exclude matching objects from being ignored.
type Config struct {
	Tables            []string
	Views             []string
	MaterializedViews []string
	Functions         []string
	Procedures        []string
	Indexes           []string
}

var _ ir.Filter = (*Config)(nil)

// Ignore reports whether an object of the given kind and name is skipped.
// Grants, constraints and columns follow their owning object.
func (c *Config) Ignore(kind ir.ObjectKind, name ir.QualifiedName) bool {
	if c == nil {
		return false
	}
	return shouldIgnore(name, c.patterns(kind))
}

// Empty reports whether no patterns are configured.
func (c *Config) Empty() bool {
	return c == nil || len(c.Tables)+len(c.Views)+len(c.MaterializedViews)+
		len(c.Functions)+len(c.Procedures)+len(c.Indexes) == 0
}

func (c *Config) patterns(kind ir.ObjectKind) []string {
	switch kind {
	case ir.KindTable:
		return c.Tables
	case ir.KindView:
		return c.Views
	case ir.KindMaterializedView:
		return c.MaterializedViews
	case ir.KindFunction:
		return c.Functions
	case ir.KindProcedure:
		return c.Procedures
	case ir.KindIndex:
		return c.Indexes
	}
	return nil
}

// shouldIgnore applies positive patterns first, then lets any negation
// pattern rescue the name.
func shouldIgnore(name ir.QualifiedName, patterns []string) bool {
	matched := false
	for _, pattern := range patterns {
		if !strings.HasPrefix(pattern, "!") && matchPattern(pattern, name) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, "!") && matchPattern(pattern[1:], name) {
			return false
		}
	}
	return true
}

func matchPattern(pattern string, name ir.QualifiedName) bool {
	subject := name.Name
	if strings.Contains(pattern, ".") {
		subject = name.Schema + "." + name.Name
	}
	matched, err := filepath.Match(pattern, subject)
	if err != nil {
		// Invalid patterns match literally.
		return pattern == subject
	}
	return matched
}
