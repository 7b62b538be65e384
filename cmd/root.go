package cmd

import (
	"fmt"
	"os"

	"github.com/pgcompose/pgcompose/cmd/compare"
	"github.com/pgcompose/pgcompose/cmd/deploy"
	"github.com/pgcompose/pgcompose/cmd/merge"
	"github.com/pgcompose/pgcompose/cmd/serve"
	"github.com/pgcompose/pgcompose/internal/logger"
	"github.com/pgcompose/pgcompose/internal/version"
	"github.com/spf13/cobra"
)

var (
	Debug     bool
	LogFormat string
)

var RootCmd = &cobra.Command{
	Use:   "pgcompose",
	Short: "PostgreSQL schema compose, diff and deploy tool",
	Long: fmt.Sprintf(`pgcompose compares, sorts and merges PostgreSQL schema sources and deploys the result.

A source is inline SQL, a .sql file, a directory of .sql files, a git
location or a postgres:// URL.

Version: %s@%s %s %s

Commands:
  compare  Plan the migration between two sources
  sort     Print a source in dependency order
  merge    Combine sources into one ordered script
  deploy   Apply a desired schema to a database
  serve    Run the HTTP API

Use "pgcompose [command] --help" for more information about a command.`,
		version.App(), version.GetGitCommit(), version.Platform(), version.GetBuildDate()),
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger()
	},
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "Enable debug logging")
	RootCmd.PersistentFlags().StringVar(&LogFormat, "log-format", "text", "Log format: text or json")
	RootCmd.AddCommand(compare.CompareCmd)
	RootCmd.AddCommand(merge.SortCmd)
	RootCmd.AddCommand(merge.MergeCmd)
	RootCmd.AddCommand(deploy.DeployCmd)
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(VersionCmd)
}

func setupLogger() error {
	format, err := logger.ParseFormat(LogFormat)
	if err != nil {
		return err
	}
	logger.SetGlobal(logger.New(os.Stderr, format, Debug), Debug)
	return nil
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
