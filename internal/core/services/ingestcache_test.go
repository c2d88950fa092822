package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

func TestHashFileIsContentAddressed(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.hbk")
	b := filepath.Join(dir, "b.hbk")
	require.NoError(t, os.WriteFile(a, []byte("same bytes"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("same bytes"), 0o644))

	hashA, err := HashFile(a)
	require.NoError(t, err)
	hashB, err := HashFile(b)
	require.NoError(t, err)
	assert.Equal(t, hashA, hashB, "hash depends on content, not path")

	require.NoError(t, os.WriteFile(b, []byte("different"), 0o644))
	hashB2, err := HashFile(b)
	require.NoError(t, err)
	assert.NotEqual(t, hashA, hashB2)
}

func TestNilStoreDegradesToNoCache(t *testing.T) {
	c := NewIngestCache(nil)
	ctx := context.Background()

	rec, err := c.Lookup(ctx, "any")
	assert.NoError(t, err)
	assert.Nil(t, rec, "a missing cache reads as a clean miss")

	assert.NoError(t, c.MarkIndexed(ctx, "any", domain.ArchiveRecord{TopicCount: 1}))
	c.MarkFailed(ctx, "/a.hbk", "reason")
	assert.Empty(t, c.RecentFailures(ctx, 10))
	assert.NoError(t, c.EraseAll(ctx))
	assert.NoError(t, c.Close())
}
