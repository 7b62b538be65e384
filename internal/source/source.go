// Package source turns a schema source specification into a catalog. A
// specification is a database URL, a git location, a directory, a .sql file
// or raw SQL text.
package source

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pgcompose/pgcompose/internal/ignore"
	"github.com/pgcompose/pgcompose/internal/include"
	"github.com/pgcompose/pgcompose/internal/logger"
	"github.com/pgcompose/pgcompose/ir"
	"golang.org/x/sync/errgroup"
)

// Kind is the detected type of a source specification.
type Kind string

const (
	KindText     Kind = "text"
	KindFile     Kind = "file"
	KindDir      Kind = "directory"
	KindGit      Kind = "git"
	KindDatabase Kind = "database"
)

// Options configures loading.
type Options struct {
	// DefaultSchema resolves unqualified names. Empty means public.
	DefaultSchema string
	// Schemas limits a database dump. Empty means DefaultSchema only.
	Schemas []string
	// Ignore drops matching objects while building the catalog.
	Ignore *ignore.Config
	// NoGrants drops every grant from the loaded catalog.
	NoGrants bool
}

func (o Options) irOptions() []ir.Option {
	var opts []ir.Option
	if o.DefaultSchema != "" {
		opts = append(opts, ir.WithDefaultSchema(o.DefaultSchema))
	}
	if !o.Ignore.Empty() {
		opts = append(opts, ir.WithFilter(o.Ignore))
	}
	return opts
}

func (o Options) dumpSchemas() []string {
	if len(o.Schemas) > 0 {
		return o.Schemas
	}
	if o.DefaultSchema != "" {
		return []string{o.DefaultSchema}
	}
	return []string{ir.DefaultSchema}
}

// Loaded is a source read into SQL text and built into a catalog.
type Loaded struct {
	Spec    string
	Kind    Kind
	SQL     string
	Catalog *ir.Catalog
}

// Detect classifies spec without touching the network.
func Detect(spec string) Kind {
	switch {
	case strings.HasPrefix(spec, "postgres://"), strings.HasPrefix(spec, "postgresql://"):
		return KindDatabase
	case isGitSpec(spec):
		return KindGit
	}
	if strings.ContainsAny(spec, "\n;") {
		return KindText
	}
	if info, err := os.Stat(spec); err == nil {
		if info.IsDir() {
			return KindDir
		}
		return KindFile
	}
	return KindText
}

// Load reads spec and builds its catalog.
func Load(ctx context.Context, spec string, opts Options) (*Loaded, error) {
	kind := Detect(spec)
	logger.Get().Debug("loading source", "kind", kind, "source", redact(spec))

	sql, err := readSQL(ctx, spec, kind, opts)
	if err != nil {
		return nil, err
	}
	cat, err := ir.Load(sql, opts.irOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog from %s source: %w", kind, err)
	}
	if opts.NoGrants {
		cat = withoutGrants(cat)
	}
	logger.Get().Debug("loaded source", "kind", kind, "objects", cat.Len())
	return &Loaded{Spec: spec, Kind: kind, SQL: sql, Catalog: cat}, nil
}

// LoadPair loads two sources concurrently. The first error cancels the other
// load.
func LoadPair(ctx context.Context, specA, specB string, opts Options) (*Loaded, *Loaded, error) {
	var a, b *Loaded
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if a, err = Load(ctx, specA, opts); err != nil {
			return fmt.Errorf("source A: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if b, err = Load(ctx, specB, opts); err != nil {
			return fmt.Errorf("source B: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// LoadAll loads every spec concurrently, keeping their order.
func LoadAll(ctx context.Context, specs []string, opts Options) ([]*Loaded, error) {
	out := make([]*Loaded, len(specs))
	g, ctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		g.Go(func() error {
			l, err := Load(ctx, spec, opts)
			if err != nil {
				return fmt.Errorf("source %d: %w", i+1, err)
			}
			out[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func readSQL(ctx context.Context, spec string, kind Kind, opts Options) (string, error) {
	switch kind {
	case KindDatabase:
		return DumpURL(ctx, spec, opts.dumpSchemas())
	case KindGit:
		return readGit(ctx, spec)
	case KindDir:
		return readPath(spec, true)
	case KindFile:
		return readPath(spec, false)
	default:
		return spec, nil
	}
}

func readPath(path string, dir bool) (string, error) {
	p := include.NewProcessor(path)
	if dir {
		return p.ProcessDir(path)
	}
	return p.ProcessFile(path)
}

func withoutGrants(cat *ir.Catalog) *ir.Catalog {
	var objs []ir.SchemaObject
	for _, obj := range cat.Objects() {
		if _, ok := obj.(*ir.Grant); !ok {
			objs = append(objs, obj)
		}
	}
	return ir.Assemble(objs, ir.WithDefaultSchema(cat.DefaultSchema()))
}

// redact hides a password in a database URL and shortens raw SQL for logs.
func redact(spec string) string {
	if Detect(spec) == KindDatabase {
		if at := strings.LastIndex(spec, "@"); at > 0 {
			scheme := strings.Index(spec, "://") + 3
			if colon := strings.Index(spec[scheme:at], ":"); colon >= 0 {
				return spec[:scheme+colon+1] + "****" + spec[at:]
			}
		}
		return spec
	}
	if len(spec) > 60 {
		return spec[:60] + "..."
	}
	return spec
}
