package main

import (
	"github.com/spf13/cobra"

	"github.com/Music-Vine/conductor/pkg/config"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWith(config.Load)
}

func newRootCommandWith(load func() (*config.Config, error)) *cobra.Command {
	var verbose bool

	ctx := newCommandContext(load, &verbose)

	rootCmd := &cobra.Command{
		Use:           "conductorctl",
		Short:         "Operate the conductor workflow backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log service activity to stderr")

	rootCmd.AddCommand(newBulkCommand(ctx))
	rootCmd.AddCommand(newAuditCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))

	return rootCmd
}
