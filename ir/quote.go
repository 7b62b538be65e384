package ir

import (
	"strconv"
	"strings"
	"unicode"
)

// reservedWords lists the PostgreSQL keywords that cannot appear unquoted as
// identifiers (https://www.postgresql.org/docs/current/sql-keywords-appendix.html).
var reservedWords = map[string]bool{
	// A-C
	"all":              true,
	"and":              true,
	"any":              true,
	"array":            true,
	"as":               true,
	"asymmetric":       true,
	"authorization":    true,
	"between":          true,
	"bigint":           true,
	"by":               true,
	"binary":           true,
	"boolean":          true,
	"both":             true,
	"case":             true,
	"cast":             true,
	"char":             true,
	"character":        true,
	"check":            true,
	"collate":          true,
	"collation":        true,
	"column":           true,
	"constraint":       true,
	"create":           true,
	"cross":            true,
	"current_catalog":  true,
	"current_date":     true,
	"current_role":     true,
	"current_schema":   true,
	"current_time":     true,
	"current_timestamp": true,
	"current_user":     true,
	// D-F
	"default":     true,
	"deferrable":  true,
	"delete":      true,
	"distinct":    true,
	"do":          true,
	"else":        true,
	"end":         true,
	"except":      true,
	"exists":      true,
	"false":       true,
	"fetch":       true,
	"filter":      true,
	"for":         true,
	"foreign":     true,
	"freeze":      true,
	"from":        true,
	// G-L
	"grant":       true,
	"group":       true,
	"having":      true,
	"ilike":       true,
	"in":          true,
	"initially":   true,
	"inner":       true,
	"insert":      true,
	"intersect":   true,
	"into":        true,
	"is":          true,
	"isnull":      true,
	"join":        true,
	"lateral":     true,
	"left":        true,
	"like":        true,
	"limit":       true,
	// N-P
	"natural":     true,
	"not":         true,
	"null":        true,
	"of":          true,
	"offset":      true,
	"on":          true,
	"only":        true,
	"or":          true,
	"order":       true,
	"outer":       true,
	"primary":     true,
	// R-S
	"references":  true,
	"returning":   true,
	"right":       true,
	"select":      true,
	"similar":     true,
	"some":        true,
	"symmetric":   true,
	"system_user": true,
	// T-W
	"table":       true,
	"tablesample": true,
	"then":        true,
	"to":          true,
	"trailing":    true,
	"true":        true,
	"union":       true,
	"update":      true,
	"unique":      true,
	"user":        true,
	"using":       true,
	"variadic":    true,
	"verbose":     true,
	"when":        true,
	"where":       true,
	"window":      true,
	"with":        true,
	"within":      true,
}

// NeedsQuoting reports whether a normalized identifier must be double-quoted
// to survive a round trip through the parser unchanged.
func NeedsQuoting(identifier string) bool {
	if identifier == "" {
		return false
	}
	if reservedWords[identifier] {
		return true
	}
	for i, r := range identifier {
		switch {
		case unicode.IsUpper(r):
			return true
		case i == 0 && !unicode.IsLetter(r) && r != '_':
			return true
		case !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '$':
			return true
		}
	}
	return false
}

// QuoteIdentifier renders identifier as SQL, quoting (and escaping embedded
// double quotes) only when required.
func QuoteIdentifier(identifier string) string {
	if !NeedsQuoting(identifier) {
		return identifier
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// QuoteLiteral renders s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// dollarQuote wraps body in a dollar-quoted string whose tag does not occur
// inside the body.
func dollarQuote(body string) string {
	tag := "$$"
	for n := 0; strings.Contains(body, tag); n++ {
		if n == 0 {
			tag = "$body$"
		} else {
			tag = "$body" + strconv.Itoa(n) + "$"
		}
	}
	return tag + body + tag
}
