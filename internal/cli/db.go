package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)

	dbResetCmd.Flags().Bool("yes", false, "Confirm wiping every ledger, project and task")
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the board database",
}

// ─── db migrate ─────────────────────────────────────────────────────────────

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date: %s\n", db.Path())
		return nil
	},
}

// ─── db reset ───────────────────────────────────────────────────────────────

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all accounts, projects, tasks and XP history",
	Long: `Delete every row from the board database, leaving the schema in place.
This is the only way XP, levels or badges are ever removed. Requires --yes.`,
	Args: cobra.NoArgs,
	RunE: runDBReset,
}

func runDBReset(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		return fmt.Errorf("refusing to reset without --yes")
	}
	db, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Reset(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Database reset: %s\n", db.Path())
	return nil
}
