package admin

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cloo-solutions/strom/internal/config"
)

// chunkFlags override the segmentation settings from the environment.
func chunkFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("chunking", pflag.ContinueOnError)
	fs.Int("chunk-size", 0, "Chunk size in characters (overrides STROM_CHUNK_SIZE)")
	fs.Int("chunk-overlap", -1, "Chunk overlap in characters (overrides STROM_CHUNK_OVERLAP)")
	fs.Int("min-chunk-size", 0, "Minimum chunk size in characters (overrides STROM_MIN_CHUNK_SIZE)")
	return fs
}

// retrievalFlags override the search settings from the environment.
func retrievalFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("retrieval", pflag.ContinueOnError)
	fs.Int("depth", 0, "Primary search depth (overrides STROM_SEARCH_DEPTH)")
	fs.Float64("threshold", -1, "Minimum relevance score (overrides STROM_RELEVANCE_THRESHOLD)")
	return fs
}

func applyChunkFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if v, _ := flags.GetInt("chunk-size"); v > 0 {
		cfg.ChunkSize = v
	}
	if v, _ := flags.GetInt("chunk-overlap"); v >= 0 {
		cfg.ChunkOverlap = v
	}
	if v, _ := flags.GetInt("min-chunk-size"); v > 0 {
		cfg.MinChunkSize = v
	}
	return cfg.Validate()
}

func applyRetrievalFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if v, _ := flags.GetInt("depth"); v > 0 {
		cfg.SearchDepth = v
	}
	if v, _ := flags.GetFloat64("threshold"); v >= 0 {
		cfg.RelevanceThreshold = v
	}
}

func outputJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetString("output")
	return v == "json"
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
