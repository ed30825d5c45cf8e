package admin

import (
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/strom/internal/database"
)

// MigrateCmd applies pending database migrations.
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			source, _ := cmd.Flags().GetString("source")
			return database.RunMigrations(cfg.DatabaseURL, source, log)
		},
	}

	cmd.Flags().String("source", database.DefaultMigrationsSource, "Migration source URL")

	return cmd
}
