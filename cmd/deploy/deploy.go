package deploy

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/pgcompose/pgcompose/cmd/util"
	"github.com/pgcompose/pgcompose/compose"
	"github.com/pgcompose/pgcompose/internal/deploy"
	"github.com/spf13/cobra"
)

var (
	connection        util.ConnectionConfig
	composeFlags      util.ComposeFlags
	desired           string
	dryRun            bool
	autoApprove       bool
	noColor           bool
	lockTimeout       time.Duration
	verifyFingerprint bool
)

var DeployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Apply a desired schema to a database",
	Long: `Plan the migration from the database's current schema to the desired
source (--file) and apply it in a single transaction after confirmation.`,
	Args:         cobra.NoArgs,
	RunE:         runDeploy,
	SilenceUsage: true,
	PreRunE:      util.PreRunEWithConnection(&connection),
}

func init() {
	util.RegisterConnectionFlags(DeployCmd, &connection)
	composeFlags.Register(DeployCmd)

	DeployCmd.Flags().StringVar(&desired, "file", "", "Desired schema source: file, directory, git location or inline SQL (required)")
	DeployCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the plan without applying it")
	DeployCmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Apply changes without prompting for approval")
	DeployCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	DeployCmd.Flags().DurationVar(&lockTimeout, "lock-timeout", 0, "Maximum time each statement waits for locks (e.g. 5s)")
	DeployCmd.Flags().BoolVar(&verifyFingerprint, "verify-fingerprint", true, "Refuse to apply when the database changed after planning")

	DeployCmd.MarkFlagRequired("file")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	opts, err := composeFlags.Options()
	if err != nil {
		return err
	}
	target := util.BuildURL(&connection)
	out := cmd.OutOrStdout()

	res, err := compose.Compare(cmd.Context(), target, desired, opts)
	if err != nil {
		return err
	}
	p := res.Plan
	if p.Empty() {
		fmt.Fprintln(out, "No changes to apply. Database schema is already up to date.")
		return nil
	}

	fmt.Fprint(out, p.Human(!noColor))
	if len(p.Unsupported) > 0 {
		return fmt.Errorf("plan has %d unsupported changes: %w", len(p.Unsupported), p.Unsupported[0])
	}
	if dryRun {
		return nil
	}

	if !autoApprove {
		fmt.Fprint(out, "\nDo you want to apply these changes? (yes/no): ")
		response, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read user input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "yes" && response != "y" {
			fmt.Fprintln(out, "Deploy cancelled.")
			return nil
		}
	}

	fmt.Fprintln(out, "\nApplying changes...")
	result, err := deploy.Execute(cmd.Context(), target, p, deploy.Options{
		LockTimeout:       lockTimeout,
		VerifyFingerprint: verifyFingerprint,
		Source:            opts.Source,
		ApplicationName:   connection.ApplicationName,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Changes applied successfully! %d statements in %s.\n",
		result.Executed, result.Duration.Round(time.Millisecond))
	return nil
}
