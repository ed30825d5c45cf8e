package admin

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/strom/internal/database"
	"github.com/cloo-solutions/strom/internal/repository"
)

// JobsCmd lists recent background ingestion jobs.
func JobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent ingestion jobs",
		Args:  cobra.NoArgs,
		RunE:  runJobs,
	}

	cmd.Flags().IntP("limit", "n", 20, "Number of jobs to show")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	jobs, err := repository.NewIngestionJobRepository(pool).ListRecent(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if outputJSON(cmd) {
		return writeJSON(cmd.OutOrStdout(), jobs)
	}
	if len(jobs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No ingestion jobs found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILE\tSTATUS\tSTORED\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", j.ID, j.Filename, j.Status, j.Stats.StoredEmbeddings, j.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
