package admin

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloo-solutions/strom/internal/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		VectorBackend:      config.VectorBackendPgvector,
		GenerationProvider: config.ProviderAnthropic,
		VectorDim:          1024,
		ChunkSize:          1000,
		ChunkOverlap:       200,
		MinChunkSize:       200,
		IngestWorkers:      4,
		IngestQueueSize:    100,
		IngestFeedBatch:    50,
		SearchDepth:        10,
		RelevanceThreshold: 0,
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := RootCmd("test")

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "ingest", "ask", "migrate", "jobs", "user"}, names)
	assert.Equal(t, "test", root.Version)
}

func TestApplyChunkFlags(t *testing.T) {
	cmd := IngestCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--chunk-size", "500", "--chunk-overlap", "50"}))

	cfg := testConfig()
	require.NoError(t, applyChunkFlags(cmd, cfg))

	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 200, cfg.MinChunkSize)
}

func TestApplyChunkFlags_Defaults(t *testing.T) {
	cmd := IngestCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	cfg := testConfig()
	require.NoError(t, applyChunkFlags(cmd, cfg))

	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
}

func TestApplyChunkFlags_InvalidOverlap(t *testing.T) {
	cmd := IngestCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--chunk-size", "100", "--chunk-overlap", "100"}))

	err := applyChunkFlags(cmd, testConfig())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHUNK_OVERLAP")
}

func TestApplyRetrievalFlags(t *testing.T) {
	cmd := AskCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--depth", "25", "--threshold", "0.4"}))

	cfg := testConfig()
	applyRetrievalFlags(cmd, cfg)

	assert.Equal(t, 25, cfg.SearchDepth)
	assert.InDelta(t, 0.4, cfg.RelevanceThreshold, 1e-9)
}

func TestApplyRetrievalFlags_Unset(t *testing.T) {
	cmd := AskCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	cfg := testConfig()
	applyRetrievalFlags(cmd, cfg)

	assert.Equal(t, 10, cfg.SearchDepth)
	assert.Zero(t, cfg.RelevanceThreshold)
}

func runCommand(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestIngestCmd_RejectsNonText(t *testing.T) {
	err := runCommand(t, IngestCmd(), "report.pdf")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "only .txt files")
}

func TestIngestCmd_RejectsBadMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solar.txt")
	require.NoError(t, os.WriteFile(path, []byte("Solar Farm"), 0o600))

	err := runCommand(t, IngestCmd(), path, "--metadata", `["region"]`)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON object")
}

func TestIngestCmd_MissingFile(t *testing.T) {
	err := runCommand(t, IngestCmd(), filepath.Join(t.TempDir(), "missing.txt"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, map[string]int{"stored": 3}))
	assert.JSONEq(t, `{"stored":3}`, buf.String())
}
