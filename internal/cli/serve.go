package cli

import (
	"github.com/spf13/cobra"

	"github.com/guildboard/guildboard/internal/daemon"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API on [api].host:[api].port. Redis is optional: without
[redis].url (or GUILD_REDIS_URL) engagement events and idempotency keys are
disabled.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	d, err := daemon.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.WithError(err).Warn("close")
		}
	}()
	return d.Run(cmd.Context())
}
