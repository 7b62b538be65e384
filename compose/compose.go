// Package compose is the programmatic API of pgcompose: compare two schema
// sources into a migration plan, sort or merge sources into one ordered
// script, and deploy a plan to a database.
package compose

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pgcompose/pgcompose/internal/deploy"
	"github.com/pgcompose/pgcompose/internal/diff"
	"github.com/pgcompose/pgcompose/internal/merge"
	"github.com/pgcompose/pgcompose/internal/plan"
	"github.com/pgcompose/pgcompose/internal/sorter"
	"github.com/pgcompose/pgcompose/internal/source"
	"github.com/pgcompose/pgcompose/ir"
)

// Options are shared by every operation.
type Options struct {
	Source source.Options
	Order  sorter.Order
	Grants sorter.GrantPlacement
	// NoGrants leaves grants out of the output.
	NoGrants bool
	DryRun   bool
}

func (o Options) sorterOptions() sorter.Options {
	return sorter.Options{Order: o.Order, Grants: o.Grants}
}

// CompareResult holds both loaded sources, their diff and the plan that
// migrates the first into the second.
type CompareResult struct {
	From *source.Loaded
	To   *source.Loaded
	Diff *diff.Diff
	Plan *plan.Plan
}

// Compare loads both sources concurrently and plans the migration from
// specA to specB.
func Compare(ctx context.Context, specA, specB string, opts Options) (*CompareResult, error) {
	a, b, err := source.LoadPair(ctx, specA, specB, opts.Source)
	if err != nil {
		return nil, err
	}
	d := diff.Compute(a.Catalog, b.Catalog)
	p := plan.Generate(d, plan.Options{
		Order:    opts.Order,
		Grants:   opts.Grants,
		NoGrants: opts.NoGrants,
		DryRun:   opts.DryRun,
	})
	return &CompareResult{From: a, To: b, Diff: d, Plan: p}, nil
}

// Sort returns every object of one source in dependency order.
func Sort(ctx context.Context, spec string, opts Options) (*merge.Result, error) {
	return Merge(ctx, []string{spec}, opts)
}

// Merge combines sources, later ones winning per object, into one script.
func Merge(ctx context.Context, specs []string, opts Options) (*merge.Result, error) {
	if len(specs) == 0 {
		return nil, errors.New("at least one source is required")
	}
	srcOpts := opts.Source
	srcOpts.NoGrants = srcOpts.NoGrants || opts.NoGrants
	loaded, err := source.LoadAll(ctx, specs, srcOpts)
	if err != nil {
		return nil, err
	}
	return merge.Script(opts.sorterOptions(), catalogs(loaded)...), nil
}

func catalogs(loaded []*source.Loaded) []*ir.Catalog {
	out := make([]*ir.Catalog, len(loaded))
	for i, l := range loaded {
		out[i] = l.Catalog
	}
	return out
}

// DeployOptions configures Deploy.
type DeployOptions struct {
	Options
	LockTimeout time.Duration
	// VerifyFingerprint refuses to run when the target changed between
	// planning and execution.
	VerifyFingerprint bool
	ApplicationName   string
}

// DeployResult is the plan and what executing it did.
type DeployResult struct {
	Plan   *plan.Plan
	Result *deploy.Result
}

// Deploy plans the migration from the live database at target to desired
// and executes it unless DryRun is set.
func Deploy(ctx context.Context, target, desired string, opts DeployOptions) (*DeployResult, error) {
	if source.Detect(target) != source.KindDatabase {
		return nil, errors.New("deploy target must be a postgres:// URL")
	}
	cmp, err := Compare(ctx, target, desired, opts.Options)
	if err != nil {
		return nil, err
	}
	if len(cmp.Plan.Unsupported) > 0 && !opts.DryRun {
		return &DeployResult{Plan: cmp.Plan}, fmt.Errorf("plan has %d unsupported changes: %w",
			len(cmp.Plan.Unsupported), cmp.Plan.Unsupported[0])
	}
	res, err := deploy.Execute(ctx, target, cmp.Plan, deploy.Options{
		DryRun:            opts.DryRun,
		LockTimeout:       opts.LockTimeout,
		VerifyFingerprint: opts.VerifyFingerprint,
		Source:            opts.Source,
		ApplicationName:   opts.ApplicationName,
	})
	if err != nil {
		return &DeployResult{Plan: cmp.Plan}, err
	}
	return &DeployResult{Plan: cmp.Plan, Result: res}, nil
}
