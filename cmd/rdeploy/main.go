package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/3cpo-dev/rdeploy/internal/logger"
	"github.com/3cpo-dev/rdeploy/pkg/api"
)

var (
	version   = "0.3.0"
	commit    = ""
	buildDate = ""
)

// Create the root command
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rdeploy",
		Short: "rdeploy: package, upload and restart an application over SSH",
		Long: "rdeploy packs the local apps and config home trees, uploads them over SFTP, unpacks them " +
			"on the remote host and drives its shutdown/startup scripts. Without a subcommand it runs deploy.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemote(cmd, api.WorkflowDeploy)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("log", "l", "info", "Set log level. Available: trace, debug, info, warn, error, fatal")
	cmd.PersistentFlags().String("config", "", "config file (default: deploy.toml in the working directory or next to the executable)")

	cmd.PersistentPreRun = func(c *cobra.Command, args []string) {
		levelStr, _ := c.Flags().GetString("log")
		zerolog.SetGlobalLevel(logger.ParseLevel(levelStr))
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDeployCmd())
	cmd.AddCommand(newRestartCmd())
	cmd.AddCommand(newFileCmd())
	cmd.AddCommand(newMvnCmd())
	cmd.AddCommand(newHistoryCmd())
	return cmd
}

// Create the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rdeploy %s (%s) %s\n", version, commit, buildDate)
		},
	}
}

// Main entry point
func main() {
	logger.SetupDefault()
	root := newRootCmd()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}
