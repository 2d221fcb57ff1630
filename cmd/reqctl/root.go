package main

import (
	"github.com/spf13/cobra"
)

// newRootCommand builds the command tree. The returned context owns any
// stores a subcommand opened and must be closed after Execute returns.
func newRootCommand() (*cobra.Command, *commandContext) {
	var driverFlag, sqliteFlag string
	ctx := newCommandContext(&driverFlag, &sqliteFlag)

	rootCmd := &cobra.Command{
		Use:           "reqctl",
		Short:         "Administer the requisition service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&driverFlag, "store", "", "Store driver (postgres or sqlite); defaults to STORE_DRIVER")
	rootCmd.PersistentFlags().StringVar(&sqliteFlag, "sqlite", "", "SQLite database path; defaults to SQLITE_PATH")

	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newUserCommand(ctx))
	rootCmd.AddCommand(newRemindCommand(ctx))
	rootCmd.AddCommand(newQueueCommand(ctx))
	rootCmd.AddCommand(newAttachmentsCommand(ctx))
	return rootCmd, ctx
}
