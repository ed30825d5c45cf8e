//go:build integration

package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/strom/internal/testutil"
)

func TestRunMigrations_Idempotent(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	require.NoError(t, RunMigrations(pc.ConnectionString(), "file://../../migrations", nil))
	require.NoError(t, RunMigrations(pc.ConnectionString(), "file://../../migrations", nil))

	pool, err := NewPool(ctx, Config{URL: pc.ConnectionString(), MaxConns: 4})
	require.NoError(t, err)
	defer pool.Close()

	var tables int
	err = pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_name IN ('document_chunks', 'users', 'messages', 'ingestion_jobs')`,
	).Scan(&tables)
	require.NoError(t, err)
	assert.Equal(t, 4, tables)
}

func TestNewPool_InvalidURL(t *testing.T) {
	_, err := NewPool(context.Background(), Config{URL: "://bad"})
	assert.Error(t, err)
}
