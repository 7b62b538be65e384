package merge

import (
	"fmt"
	"io"

	"github.com/pgcompose/pgcompose/cmd/util"
	"github.com/pgcompose/pgcompose/compose"
	"github.com/pgcompose/pgcompose/internal/dump"
	"github.com/pgcompose/pgcompose/internal/merge"
	"github.com/spf13/cobra"
)

// layout controls how a script is written.
type layout struct {
	output    string
	headers   bool
	multiFile bool
}

func (l *layout) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&l.output, "output", "o", "", "Write the script to a file instead of stdout")
	cmd.Flags().BoolVar(&l.headers, "headers", false, "Precede each object with a comment header")
	cmd.Flags().BoolVar(&l.multiFile, "multi-file", false, "Write one file per object and a main file of \\i directives at --output")
}

var (
	sortFlags  util.ComposeFlags
	sortLayout layout

	mergeFlags  util.ComposeFlags
	mergeLayout layout
)

var SortCmd = &cobra.Command{
	Use:   "sort SOURCE",
	Short: "Print a schema source in dependency order",
	Long: `Print every object of SOURCE as one script in which each statement
follows the objects it depends on. Dependency cycles are reported as warnings
and emitted in declaration order.`,
	Args:         cobra.ExactArgs(1),
	RunE:         runSort,
	SilenceUsage: true,
}

var MergeCmd = &cobra.Command{
	Use:   "merge SOURCE...",
	Short: "Combine schema sources into one ordered script",
	Long: `Merge SOURCEs into one script in dependency order. When an object is
defined by more than one source, the last definition wins.`,
	Args:         cobra.MinimumNArgs(1),
	RunE:         runMerge,
	SilenceUsage: true,
}

func init() {
	sortFlags.Register(SortCmd)
	sortLayout.register(SortCmd)

	mergeFlags.Register(MergeCmd)
	mergeLayout.register(MergeCmd)
}

func runSort(cmd *cobra.Command, args []string) error {
	opts, err := sortFlags.Options()
	if err != nil {
		return err
	}
	res, err := compose.Sort(cmd.Context(), args[0], opts)
	if err != nil {
		return err
	}
	return sortLayout.write(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts.Source.DefaultSchema, res)
}

func runMerge(cmd *cobra.Command, args []string) error {
	opts, err := mergeFlags.Options()
	if err != nil {
		return err
	}
	res, err := compose.Merge(cmd.Context(), args, opts)
	if err != nil {
		return err
	}
	return mergeLayout.write(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts.Source.DefaultSchema, res)
}

func (l *layout) write(stdout, stderr io.Writer, defaultSchema string, res *merge.Result) error {
	for _, w := range res.Warnings {
		fmt.Fprintf(stderr, "warning: %s\n", w)
	}
	formatter := dump.NewFormatter(defaultSchema)
	switch {
	case l.multiFile:
		if l.output == "" {
			return fmt.Errorf("--multi-file requires --output")
		}
		return formatter.FormatMultiFile(res, l.output)
	case l.headers:
		return util.WriteTarget(stdout, l.output, formatter.FormatSingleFile(res))
	default:
		return util.WriteTarget(stdout, l.output, res.SQL())
	}
}
