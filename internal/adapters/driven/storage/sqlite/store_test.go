package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestLookupMissReturnsNil(t *testing.T) {
	store := newTestStore(t)
	rec, err := store.Lookup(context.Background(), "unknown-hash")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMarkIndexedRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	meta := domain.ArchiveRecord{Version: "8.3.24", Language: "ru", TopicCount: 42}
	require.NoError(t, store.MarkIndexed(ctx, "hash-1", meta))

	rec, err := store.Lookup(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.ArchiveStatusIndexed, rec.Status)
	assert.Equal(t, "8.3.24", rec.Version)
	assert.Equal(t, "ru", rec.Language)
	assert.Equal(t, 42, rec.TopicCount)
	assert.False(t, rec.IndexedAt.IsZero())
}

func TestMarkIndexedUpsertsExistingHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.MarkIndexed(ctx, "h", domain.ArchiveRecord{TopicCount: 1}))
	require.NoError(t, store.MarkIndexed(ctx, "h", domain.ArchiveRecord{TopicCount: 9}))

	rec, err := store.Lookup(ctx, "h")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 9, rec.TopicCount)
}

func TestRecentFailuresNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.MarkFailed(ctx, "/a.hbk", "first"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.MarkFailed(ctx, "/b.hbk", "second"))

	failures, err := store.RecentFailures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, "/b.hbk", failures[0].Path)
	assert.Equal(t, "/a.hbk", failures[1].Path)
}

func TestEraseAllForcesFullReingest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.MarkIndexed(ctx, "h", domain.ArchiveRecord{TopicCount: 1}))
	require.NoError(t, store.MarkFailed(ctx, "/a.hbk", "x"))
	require.NoError(t, store.EraseAll(ctx))

	rec, err := store.Lookup(ctx, "h")
	require.NoError(t, err)
	assert.Nil(t, rec)
	failures, err := store.RecentFailures(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening runs the migration pass again over an up-to-date schema.
	store2, err := NewStore(dir)
	require.NoError(t, err)
	assert.NoError(t, store2.Close())
}
