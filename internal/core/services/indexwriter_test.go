package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

func TestUpsertTopicsChunksPoints(t *testing.T) {
	store := newFakeVectorIndex()
	w := NewIndexWriter(store)

	n := 1200
	topics := make([]domain.Topic, n)
	vectors := make([][]float32, n)
	for i := range topics {
		topics[i] = domain.NewTopic("t", "b", "p", "v", "l")
		topics[i].ID = uint64(i + 1)
		vectors[i] = []float32{1}
	}

	require.NoError(t, w.UpsertTopics(context.Background(), topics, vectors))
	assert.Equal(t, []int{500, 500, 200}, store.chunkLens)
	assert.Len(t, store.points, n)
}

func TestUpsertTopicsRejectsCountMismatch(t *testing.T) {
	w := NewIndexWriter(newFakeVectorIndex())
	err := w.UpsertTopics(context.Background(), make([]domain.Topic, 2), make([][]float32, 3))
	require.ErrorIs(t, err, domain.ErrVectorCountMismatch)
}

func TestUpsertTopicsPayloadFields(t *testing.T) {
	store := newFakeVectorIndex()
	w := NewIndexWriter(store)

	topic := domain.NewTopic("Array", "body", "objects/array.html", "8.3.24", "ru")
	require.NoError(t, w.UpsertTopics(context.Background(), []domain.Topic{topic}, [][]float32{{1}}))

	point := store.points[topic.ID]
	assert.Equal(t, "Array", point.Payload["title"])
	assert.Equal(t, "objects/array.html", point.Payload["path"])
	assert.Equal(t, "8.3.24", point.Payload["version"])
	assert.Equal(t, "ru", point.Payload["language"])
	assert.Equal(t, domain.DomainHelp, point.Payload["domain"])
}

func TestSnapshotRestoreRequiresName(t *testing.T) {
	w := NewIndexWriter(newFakeVectorIndex())
	err := w.SnapshotRestore(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}
