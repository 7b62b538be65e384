package util

import (
	"fmt"

	"github.com/pgcompose/pgcompose/compose"
	"github.com/pgcompose/pgcompose/internal/ignore"
	"github.com/pgcompose/pgcompose/internal/sorter"
	"github.com/pgcompose/pgcompose/internal/source"
	"github.com/spf13/cobra"
)

// ComposeFlags are the ordering and loading flags shared by compare, sort,
// merge and deploy.
type ComposeFlags struct {
	Order         string
	Grants        string
	NoGrants      bool
	DefaultSchema string
	Schemas       []string
	IgnoreFile    string
}

// Register adds the flags to cmd.
func (f *ComposeFlags) Register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Order, "order", "declaration", "Tie-break order for independent objects: declaration or name")
	cmd.Flags().StringVar(&f.Grants, "grants", "inline", "Grant placement: inline, before or after")
	cmd.Flags().BoolVar(&f.NoGrants, "no-grants", false, "Leave grants out of the output")
	cmd.Flags().StringVar(&f.DefaultSchema, "schema", "public", "Schema for unqualified names")
	cmd.Flags().StringSliceVar(&f.Schemas, "dump-schema", nil, "Schemas read from database sources (default: --schema)")
	cmd.Flags().StringVar(&f.IgnoreFile, "ignore-file", ignore.IgnoreFileName, "Ignore file with object patterns to skip")
}

// Options validates the flags and loads the ignore file.
func (f *ComposeFlags) Options() (compose.Options, error) {
	order, err := sorter.ParseOrder(f.Order)
	if err != nil {
		return compose.Options{}, err
	}
	grants, err := sorter.ParseGrantPlacement(f.Grants)
	if err != nil {
		return compose.Options{}, err
	}
	ign, err := ignore.LoadIgnoreFileFromPath(f.IgnoreFile)
	if err != nil {
		return compose.Options{}, fmt.Errorf("failed to load %s: %w", f.IgnoreFile, err)
	}
	return compose.Options{
		Source: source.Options{
			DefaultSchema: f.DefaultSchema,
			Schemas:       f.Schemas,
			Ignore:        ign,
		},
		Order:    order,
		Grants:   grants,
		NoGrants: f.NoGrants,
	}, nil
}
