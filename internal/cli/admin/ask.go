package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/strom/internal/domain"
	"github.com/cloo-solutions/strom/internal/service"
)

// AskCmd answers a question against the ingested documents.
func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the ingested projects",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	cmd.Flags().String("user-id", "", "Record the conversation for this user")
	cmd.Flags().String("email", "", "Email used when the user does not exist yet")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().AddFlagSet(retrievalFlags())

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()
	applyRetrievalFlags(cmd, cfg)

	a, err := newApp(ctx, cfg, log, appOptions{requireGeneration: true})
	if err != nil {
		return err
	}
	defer a.Close()

	userID, _ := cmd.Flags().GetString("user-id")
	email, _ := cmd.Flags().GetString("email")

	result, err := a.conversation.Converse(ctx, service.ConversationInput{
		UserID:  userID,
		Email:   email,
		Message: strings.Join(args, " "),
	})
	if err != nil {
		return err
	}

	if outputJSON(cmd) {
		return writeJSON(cmd.OutOrStdout(), result.Answer)
	}
	printAnswer(cmd, result.Answer)
	return nil
}

func printAnswer(cmd *cobra.Command, answer domain.StructuredAnswer) {
	out := cmd.OutOrStdout()
	for _, line := range answer.Response {
		fmt.Fprintf(out, "- %s\n", line)
	}
	fmt.Fprintf(out, "\nIn dataset: %t  Elsewhere: %t\n", answer.ExistsInData, answer.ExistsElsewhere)
	if len(answer.Sources) > 0 {
		fmt.Fprintln(out, "Sources:")
		for _, s := range answer.Sources {
			fmt.Fprintf(out, "  %s  %s\n", s.SourceName, s.SourceURL)
		}
	}
}
