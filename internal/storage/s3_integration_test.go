//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/strom/internal/testutil"
)

func TestIntegration_S3Client_Archive(t *testing.T) {
	ctx := context.Background()
	rc := testutil.NewRustFSContainer(ctx, t)
	defer rc.Terminate(ctx)

	client, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        rc.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "strom-test",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, client.EnsureBucket(ctx))
	require.NoError(t, client.EnsureBucket(ctx))

	key, err := client.Archive(ctx, "doc_7", "wind.txt", []byte("Wind Park produces 12MW."))
	require.NoError(t, err)
	assert.Equal(t, "documents/doc_7/wind.txt", key)

	body, err := client.GetObject(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Wind Park produces 12MW.", string(body))

	url, err := client.GenerateDownloadURL(ctx, key)
	require.NoError(t, err)
	assert.Contains(t, url, "documents/doc_7/wind.txt")

	require.NoError(t, client.DeleteObject(ctx, key))
	_, err = client.GetObject(ctx, key)
	assert.Error(t, err)
}
