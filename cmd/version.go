package cmd

import (
	"fmt"

	"github.com/pgcompose/pgcompose/internal/version"
	"github.com/spf13/cobra"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  "Display the version number of pgcompose",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pgcompose v%s@%s %s %s\n",
			version.App(), version.GetGitCommit(), version.Platform(), version.GetBuildDate())
	},
}
