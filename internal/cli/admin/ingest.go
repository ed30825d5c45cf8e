package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/strom/internal/service"
)

// IngestCmd ingests a local text file without going through the API.
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a .txt document",
		Long:  "Segment, embed and store a plain-text document in the configured vector store",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}

	cmd.Flags().Bool("bulk", false, "Embed all chunks before storing them in batches")
	cmd.Flags().String("metadata", "", "Custom metadata as a JSON object")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().AddFlagSet(chunkFlags())

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path := args[0]

	if !strings.EqualFold(filepath.Ext(path), ".txt") {
		return fmt.Errorf("only .txt files are supported: %s", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var custom map[string]any
	if raw, _ := cmd.Flags().GetString("metadata"); strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &custom); err != nil || custom == nil {
			return fmt.Errorf("--metadata must be a JSON object")
		}
	}
	bulk, _ := cmd.Flags().GetBool("bulk")

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()
	if err := applyChunkFlags(cmd, cfg); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, log, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.ingestion.IngestDocument(ctx, service.IngestDocumentInput{
		Text:     string(content),
		Filename: filepath.Base(path),
		Custom:   custom,
		Bulk:     bulk,
	})
	if err != nil {
		return fmt.Errorf("failed to ingest %s: %w", path, err)
	}

	if outputJSON(cmd) {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s\n", result.Filename)
	fmt.Fprintf(cmd.OutOrStdout(), "  Document ID: %s\n", result.DocumentID)
	fmt.Fprintf(cmd.OutOrStdout(), "  Chunks:      %d\n", result.TotalChunks)
	fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", result.Message)
	if result.ArchiveKey != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "  Archived:    %s\n", result.ArchiveKey)
	}
	return nil
}
