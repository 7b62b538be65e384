package ir

import (
	"slices"
	"strings"
	"unicode"
)

// typeAliases maps the names pg_query reports for built-in types to the
// spelling used throughout the catalog.
var typeAliases = map[string]string{
	"int2":        "smallint",
	"int4":        "integer",
	"int8":        "bigint",
	"int":         "integer",
	"float4":      "real",
	"float8":      "double precision",
	"bool":        "boolean",
	"bpchar":      "character",
	"char":        "character",
	"varchar":     "varchar",
	"varbit":      "bit varying",
	"timestamptz": "timestamptz",
	"timetz":      "timetz",
	"decimal":     "numeric",

	"character varying":           "varchar",
	"timestamp with time zone":    "timestamptz",
	"timestamp without time zone": "timestamp",
	"time with time zone":         "timetz",
	"time without time zone":      "time",
	"double precision":            "double precision",
}

// normalizeTypeName canonicalizes a possibly qualified type name. The
// pg_catalog qualification added by the parser is dropped.
func normalizeTypeName(parts []string) string {
	if len(parts) > 1 && parts[0] == "pg_catalog" {
		parts = parts[1:]
	}
	name := strings.Join(parts, ".")
	if len(parts) == 1 {
		if mapped, ok := typeAliases[name]; ok {
			return mapped
		}
	}
	if mapped, ok := typeAliases[strings.Join(parts, " ")]; ok {
		return mapped
	}
	return name
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuotedIdent
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

// lexBody splits SQL or PL/pgSQL text into tokens, dropping whitespace and
// comments. Unquoted words are lower-cased; string literals, dollar-quoted
// strings and quoted identifiers keep their exact text.
func lexBody(src string) []token {
	var toks []token
	rs := []rune(src)
	n := len(rs)
	for i := 0; i < n; {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '-' && i+1 < n && rs[i+1] == '-':
			for i < n && rs[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < n && rs[i+1] == '*':
			depth := 0
			for i < n {
				if rs[i] == '/' && i+1 < n && rs[i+1] == '*' {
					depth++
					i += 2
					continue
				}
				if rs[i] == '*' && i+1 < n && rs[i+1] == '/' {
					depth--
					i += 2
					if depth == 0 {
						break
					}
					continue
				}
				i++
			}
		case r == '\'':
			j := i + 1
			for j < n {
				if rs[j] == '\'' {
					if j+1 < n && rs[j+1] == '\'' {
						j += 2
						continue
					}
					break
				}
				j++
			}
			j = min(j+1, n)
			toks = append(toks, token{tokString, string(rs[i:j])})
			i = j
		case r == '"':
			j := i + 1
			var b strings.Builder
			for j < n {
				if rs[j] == '"' {
					if j+1 < n && rs[j+1] == '"' {
						b.WriteRune('"')
						j += 2
						continue
					}
					break
				}
				b.WriteRune(rs[j])
				j++
			}
			toks = append(toks, token{tokQuotedIdent, b.String()})
			i = min(j+1, n)
		case r == '$':
			if tag, ok := dollarTag(rs, i); ok {
				j := indexRunes(rs, tag, i+len(tag))
				if j < 0 {
					j = n
				} else {
					j += len(tag)
				}
				toks = append(toks, token{tokString, string(rs[i:j])})
				i = j
				continue
			}
			toks = append(toks, token{tokPunct, "$"})
			i++
		case unicode.IsLetter(r) || r == '_':
			j := i + 1
			for j < n && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_' || rs[j] == '$') {
				j++
			}
			toks = append(toks, token{tokWord, strings.ToLower(string(rs[i:j]))})
			i = j
		case unicode.IsDigit(r):
			j := i + 1
			for j < n && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, string(rs[i:j])})
			i = j
		default:
			toks = append(toks, token{tokPunct, string(r)})
			i++
		}
	}
	return toks
}

// dollarTag returns the $tag$ opening at rs[i], if any.
func dollarTag(rs []rune, i int) ([]rune, bool) {
	j := i + 1
	for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_') {
		j++
	}
	if j >= len(rs) || rs[j] != '$' {
		return nil, false
	}
	if j > i+1 && unicode.IsDigit(rs[i+1]) {
		return nil, false
	}
	return rs[i : j+1], true
}

func indexRunes(rs, sub []rune, from int) int {
	for i := from; i+len(sub) <= len(rs); i++ {
		if slices.Equal(rs[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

// NormalizeBody reduces a routine body to a canonical token string so that
// whitespace, comments and keyword case never make two bodies differ.
// It is idempotent.
func NormalizeBody(body string) string {
	toks := lexBody(body)
	parts := make([]string, len(toks))
	for i, t := range toks {
		if t.kind == tokQuotedIdent {
			parts[i] = `"` + strings.ReplaceAll(t.text, `"`, `""`) + `"`
			continue
		}
		parts[i] = t.text
	}
	return strings.Join(parts, " ")
}

var relationKeywords = map[string]bool{
	"from":       true,
	"join":       true,
	"into":       true,
	"update":     true,
	"table":      true,
	"references": true,
}

// bodyReferences scans routine body tokens for names that look like relation
// targets (after FROM, JOIN, INTO, UPDATE) or function calls. The result is a
// superset; callers keep only names defined in the catalog. Calls yield
// routine names.
func bodyReferences(body, defaultSchema string) []QualifiedName {
	toks := lexBody(body)
	isIdent := func(i int) bool {
		return i < len(toks) && (toks[i].kind == tokWord || toks[i].kind == tokQuotedIdent)
	}
	// readName consumes ident [. ident] starting at i.
	readName := func(i int) (QualifiedName, int) {
		first := toks[i].text
		if i+2 < len(toks) && toks[i+1].text == "." && toks[i+1].kind == tokPunct && isIdent(i+2) {
			return QualifiedName{Schema: first, Name: toks[i+2].text}, i + 3
		}
		return QualifiedName{Schema: defaultSchema, Name: first}, i + 1
	}

	seen := make(map[QualifiedName]bool)
	var refs []QualifiedName
	add := func(q QualifiedName) {
		if !seen[q] {
			seen[q] = true
			refs = append(refs, q)
		}
	}
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind == tokWord && relationKeywords[t.text] && isIdent(i+1) {
			q, _ := readName(i + 1)
			add(q)
			continue
		}
		if isIdent(i) && (i == 0 || toks[i-1].text != ".") {
			q, next := readName(i)
			if next < len(toks) && toks[next].kind == tokPunct && toks[next].text == "(" {
				q.Routine = true
				add(q)
			}
		}
	}
	return refs
}
