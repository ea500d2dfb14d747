package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := newCommandContext()

	rootCmd := &cobra.Command{
		Use:           "curator",
		Short:         "Import, tag and publish testimonials",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.overrides.Env, "env", "", "Environment (development, staging, production)")
	flags.StringVar(&ctx.overrides.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&ctx.overrides.DataPath, "data-path", "", "Base path for the database, run ledger and avatars")
	flags.StringVar(&ctx.overrides.RulesPath, "rules", "", "Curation rules file (default: built-in rules)")
	flags.StringVar(&ctx.overrides.EnvFile, "env-file", ".env", "Path to .env file")

	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newTagCommand(ctx))
	rootCmd.AddCommand(newReportCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))

	return rootCmd
}
