// Package cli implements the guild command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/guildboard/guildboard/internal/daemon"
	"github.com/guildboard/guildboard/internal/infra/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "guild",
	Short: "Project board with XP, levels and badges",
	Long: `guild runs a project board where finishing tasks earns XP.
Developers level up and collect badges; project managers and clients
earn a share of every completed task.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config.toml (default $GUILD_HOME/config.toml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config named by --config.
func loadConfig(cmd *cobra.Command) (daemon.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return daemon.LoadConfig(path)
}

// openStore opens the configured database.
func openStore(cmd *cobra.Command) (*sqlite.DB, daemon.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, cfg, err
	}
	db, err := sqlite.Open(cfg.Storage.Dir)
	if err != nil {
		return nil, cfg, err
	}
	return db, cfg, nil
}
