package lexical

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

func newMemIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func indexTopics(t *testing.T, idx *Index, topics ...domain.Topic) {
	t.Helper()
	for _, topic := range topics {
		require.NoError(t, idx.Index(context.Background(), topic))
	}
}

func TestSearchFindsTitleAndBodyMatches(t *testing.T) {
	idx := newMemIndex(t)
	indexTopics(t, idx,
		domain.Topic{ID: 1, Title: "Array", Body: "collection of values", Path: "objects/array.html"},
		domain.Topic{ID: 2, Title: "Map", Body: "array-backed storage", Path: "objects/map.html"},
		domain.Topic{ID: 3, Title: "File", Body: "file operations", Path: "io/file.html"},
	)

	results, err := idx.Search(context.Background(), "array", "", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Array", results[0].Topic.Title, "title match ranks above body match")

	for _, r := range results {
		haystack := strings.ToLower(r.Topic.Title + " " + r.Topic.Body)
		assert.Contains(t, haystack, "array", "every keyword result contains the query")
	}
}

func TestSearchUpdatesExistingDocument(t *testing.T) {
	idx := newMemIndex(t)
	topic := domain.Topic{ID: 7, Title: "Old title", Body: "body", Path: "p.html"}
	indexTopics(t, idx, topic)

	topic.Title = "New title"
	indexTopics(t, idx, topic)

	results, err := idx.Search(context.Background(), "title", "", 10)
	require.NoError(t, err)
	require.Len(t, results, 1, "reindexing the same id updates, not duplicates")
	assert.Equal(t, "New title", results[0].Topic.Title)
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := newMemIndex(t)
	results, err := idx.Search(context.Background(), "anything", "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, idx.Count())
}

func TestSearchRespectsK(t *testing.T) {
	idx := newMemIndex(t)
	for i := 0; i < 8; i++ {
		indexTopics(t, idx, domain.Topic{ID: uint64(i + 1), Title: "shared term", Body: "text", Path: "p"})
	}
	results, err := idx.Search(context.Background(), "shared", "", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestOpenPersistentIndex(t *testing.T) {
	dir := t.TempDir() + "/keyword.bleve"
	idx, err := Open(dir)
	require.NoError(t, err)
	indexTopics(t, idx, domain.Topic{ID: 1, Title: "Persisted", Body: "b", Path: "p"})
	require.NoError(t, idx.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.Count())
}
