package compare

import (
	"fmt"

	"github.com/pgcompose/pgcompose/cmd/util"
	"github.com/pgcompose/pgcompose/compose"
	"github.com/spf13/cobra"
)

var (
	composeFlags util.ComposeFlags
	outputFlags  util.OutputFlags
	dryRun       bool
)

var CompareCmd = &cobra.Command{
	Use:   "compare SOURCE_A SOURCE_B",
	Short: "Plan the migration between two schema sources",
	Long: `Compare two schema sources and print the statements that migrate SOURCE_A
into SOURCE_B. Each source is inline SQL, a .sql file, a directory, a git
location or a postgres:// URL.`,
	Args:         cobra.ExactArgs(2),
	RunE:         runCompare,
	SilenceUsage: true,
}

func init() {
	composeFlags.Register(CompareCmd)
	outputFlags.Register(CompareCmd)
	CompareCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Mark the plan as a dry run")
}

func runCompare(cmd *cobra.Command, args []string) error {
	opts, err := composeFlags.Options()
	if err != nil {
		return err
	}
	opts.DryRun = dryRun

	res, err := compose.Compare(cmd.Context(), args[0], args[1], opts)
	if err != nil {
		return err
	}
	for _, w := range res.Plan.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
	for _, u := range res.Plan.Unsupported {
		fmt.Fprintf(cmd.ErrOrStderr(), "unsupported: %s\n", u)
	}
	return outputFlags.WritePlan(cmd.OutOrStdout(), res.Plan)
}
