package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/strom/internal/database"
	"github.com/cloo-solutions/strom/internal/repository"
)

// UserCmd returns the user command with subcommands
func UserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage conversation users",
	}

	cmd.AddCommand(userSetPaidCmd())
	cmd.AddCommand(userHistoryCmd())

	return cmd
}

func userSetPaidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-paid <user-id>",
		Short: "Move a user to the paid tier (or back with --free)",
		Args:  cobra.ExactArgs(1),
		RunE:  runUserSetPaid,
	}

	cmd.Flags().Bool("free", false, "Return the user to the free tier")

	return cmd
}

func userHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <user-id>",
		Short: "Show a user's recent messages",
		Args:  cobra.ExactArgs(1),
		RunE:  runUserHistory,
	}

	cmd.Flags().IntP("limit", "n", 10, "Number of messages to show")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func withUserRepository(ctx context.Context, fn func(context.Context, *repository.ConversationStore) error) error {
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

	return fn(ctx, repository.NewConversationStore(pool))
}

func runUserSetPaid(cmd *cobra.Command, args []string) error {
	userID := args[0]
	free, _ := cmd.Flags().GetBool("free")

	return withUserRepository(context.Background(), func(ctx context.Context, store *repository.ConversationStore) error {
		if err := store.SetPaid(ctx, userID, !free); err != nil {
			return fmt.Errorf("failed to update user %s: %w", userID, err)
		}
		tier := "paid"
		if free {
			tier = "free"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "User %s is now on the %s tier.\n", userID, tier)
		return nil
	})
}

func runUserHistory(cmd *cobra.Command, args []string) error {
	userID := args[0]
	limit, _ := cmd.Flags().GetInt("limit")

	return withUserRepository(context.Background(), func(ctx context.Context, store *repository.ConversationStore) error {
		msgs, err := store.ListUserMessages(ctx, userID, limit)
		if err != nil {
			return fmt.Errorf("failed to list messages: %w", err)
		}
		if outputJSON(cmd) {
			return writeJSON(cmd.OutOrStdout(), msgs)
		}
		if len(msgs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No messages found.")
			return nil
		}
		for _, m := range msgs {
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n  Q: %s\n  A: %s\n\n",
				m.CreatedAt.Format(time.RFC3339), m.ID, m.UserMessage, m.AgentMessage)
		}
		return nil
	})
}
