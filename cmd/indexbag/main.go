// Package main provides the entry point for the indexbag CLI tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/indexbag/cmd/indexbag/commands"
	"github.com/Sumatoshi-tech/indexbag/pkg/version"
)

var (
	verbose bool
	quiet   bool
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "indexbag",
		Short: "indexbag - generational slot allocator toolkit",
		Long: `indexbag exercises a generational slot allocator.

Commands:
  rapid     Drive a bag with seeded random operations and verify every result
  validate  Validate a JSON rapid report against the report schema
  version   Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output")

	rootCmd.AddCommand(commands.NewRapidCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "indexbag %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
