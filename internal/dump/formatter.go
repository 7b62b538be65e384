// Package dump writes a merged script as one annotated file or as a tree of
// per-object files tied together by a main file of \i directives.
package dump

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pgcompose/pgcompose/internal/merge"
	"github.com/pgcompose/pgcompose/internal/version"
	"github.com/pgcompose/pgcompose/ir"
)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Formatter lays out merge results.
type Formatter struct {
	defaultSchema string
}

// NewFormatter returns a Formatter that omits defaultSchema in headers and
// file names.
func NewFormatter(defaultSchema string) *Formatter {
	if defaultSchema == "" {
		defaultSchema = ir.DefaultSchema
	}
	return &Formatter{defaultSchema: defaultSchema}
}

// entry is one statement of the result with the object it belongs to.
type entry struct {
	obj ir.SchemaObject
	sql string
}

func entries(res *merge.Result) []entry {
	out := make([]entry, 0, len(res.Order))
	for i, name := range res.Order {
		obj, ok := res.Catalog.Get(name)
		if !ok {
			continue
		}
		out = append(out, entry{obj: obj, sql: res.Statements[i]})
	}
	return out
}

// FormatSingleFile renders the script with a header per object.
func (f *Formatter) FormatSingleFile(res *merge.Result) string {
	var output strings.Builder
	output.WriteString(f.generateHeader())
	for i, e := range entries(res) {
		if i > 0 {
			output.WriteString("\n")
		}
		output.WriteString(f.formatObjectCommentHeader(e.obj))
		output.WriteString(e.sql)
		output.WriteString("\n")
	}
	return output.String()
}

// FormatMultiFile writes one file per owning object under a directory per
// kind and a main file at outputPath that includes them in dependency order.
// Indexes, policies and grants are written with the object they belong to.
func (f *Formatter) FormatMultiFile(res *merge.Result, outputPath string) error {
	baseDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	files := make(map[string][]entry)
	var includes []string
	for _, e := range entries(res) {
		relativePath := f.objectPath(res.Catalog, e.obj)
		if _, seen := files[relativePath]; !seen {
			includes = append(includes, relativePath)
		}
		files[relativePath] = append(files[relativePath], e)
	}

	for _, relativePath := range includes {
		filePath := filepath.Join(baseDir, relativePath)
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(filePath), err)
		}
		if err := os.WriteFile(filePath, []byte(f.objectFile(files[relativePath])), 0644); err != nil {
			return fmt.Errorf("failed to write file %s: %w", filePath, err)
		}
	}

	var main strings.Builder
	main.WriteString(f.generateHeader())
	for _, relativePath := range includes {
		main.WriteString("\\i " + filepath.ToSlash(relativePath) + "\n")
	}
	if err := os.WriteFile(outputPath, []byte(main.String()), 0644); err != nil {
		return fmt.Errorf("failed to create main file: %w", err)
	}
	return nil
}

func (f *Formatter) objectFile(group []entry) string {
	var out strings.Builder
	for i, e := range group {
		if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString(f.formatObjectCommentHeader(e.obj))
		out.WriteString(e.sql)
		out.WriteString("\n")
	}
	return out.String()
}

// owner returns the object whose file holds obj.
func owner(cat *ir.Catalog, obj ir.SchemaObject) ir.SchemaObject {
	var target ir.QualifiedName
	switch o := obj.(type) {
	case *ir.Index:
		target = o.Table
	case *ir.Grant:
		target = o.Target
	case *ir.Policy:
		target = o.Table
	default:
		return obj
	}
	if parent, ok := cat.Get(target); ok {
		return parent
	}
	return obj
}

// objectPath returns the file of obj relative to the main file.
func (f *Formatter) objectPath(cat *ir.Catalog, obj ir.SchemaObject) string {
	own := owner(cat, obj)
	return filepath.Join(f.getObjectDirectory(own.Kind()), f.fileName(own.Name())+".sql")
}

// getObjectDirectory returns the directory name for an object kind
func (f *Formatter) getObjectDirectory(kind ir.ObjectKind) string {
	switch kind {
	case ir.KindFunction:
		return "functions"
	case ir.KindProcedure:
		return "procedures"
	case ir.KindTable:
		return "tables"
	case ir.KindView, ir.KindMaterializedView:
		return "views"
	case ir.KindIndex:
		return "indexes"
	case ir.KindGrant:
		return "grants"
	case ir.KindPolicy:
		return "policies"
	default:
		return "misc"
	}
}

// fileName converts a name to a file name, prefixing the schema when it is
// not the default one.
func (f *Formatter) fileName(name ir.QualifiedName) string {
	base := name.Name
	if name.Schema != f.defaultSchema {
		base = name.Schema + "." + name.Name
	}
	sanitized := strings.Trim(unsafeFileChars.ReplaceAllString(base, "_"), "_")
	return strings.ToLower(sanitized)
}

// generateHeader generates the header written at the top of the script
func (f *Formatter) generateHeader() string {
	var header strings.Builder
	header.WriteString("--\n")
	header.WriteString("-- pgcompose schema\n")
	header.WriteString("--\n")
	header.WriteString("\n")
	header.WriteString(fmt.Sprintf("-- Generated by pgcompose version %s\n", version.App()))
	header.WriteString("\n")
	header.WriteString("\n")
	return header.String()
}

// formatObjectCommentHeader generates the comment header for an object
func (f *Formatter) formatObjectCommentHeader(obj ir.SchemaObject) string {
	name := obj.Name()
	objectName := name.Name
	schemaName := "-"
	if name.Schema != f.defaultSchema {
		schemaName = name.Schema
	}
	switch o := obj.(type) {
	case *ir.Grant:
		objectName = o.Target.Name + " TO " + o.Grantee
	case *ir.Policy:
		objectName = o.Policy + " ON " + o.Table.Name
	}
	return fmt.Sprintf("--\n-- Name: %s; Type: %s; Schema: %s\n--\n\n", objectName, obj.Kind().SQLKeyword(), schemaName)
}
