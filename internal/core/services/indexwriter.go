package services

import (
	"context"
	"fmt"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
	"github.com/mussolene/1c-hbk-helper/internal/core/ports/driven"
	"github.com/mussolene/1c-hbk-helper/internal/logger"
)

// DefaultUpsertChunkSize bounds how many points are sent to the vector
// store in a single request.
const DefaultUpsertChunkSize = 500

// IndexWriter wraps a driven.VectorIndex with chunked upserts and
// dimension-driven collection lifecycle (component D).
type IndexWriter struct {
	store     driven.VectorIndex
	chunkSize int
}

// NewIndexWriter wraps store with the default chunk size.
func NewIndexWriter(store driven.VectorIndex) *IndexWriter {
	return &IndexWriter{store: store, chunkSize: DefaultUpsertChunkSize}
}

// EnsureCollection creates or recreates the collection for dim, the only
// destructive operation this writer performs.
func (w *IndexWriter) EnsureCollection(ctx context.Context, dim int, recreate bool) error {
	return w.store.EnsureCollection(ctx, dim, recreate)
}

// UpsertTopics writes topics paired with their embeddings in bounded
// chunks. len(topics) must equal len(vectors).
func (w *IndexWriter) UpsertTopics(ctx context.Context, topics []domain.Topic, vectors [][]float32) error {
	if len(topics) != len(vectors) {
		return fmt.Errorf("%w: index writer got %d topics for %d vectors", domain.ErrVectorCountMismatch, len(topics), len(vectors))
	}
	points := make([]driven.VectorPoint, len(topics))
	for i, t := range topics {
		points[i] = driven.VectorPoint{
			ID:     t.ID,
			Vector: vectors[i],
			Payload: map[string]any{
				"title":    t.Title,
				"body":     t.Body,
				"path":     t.Path,
				"version":  t.Version,
				"language": t.Language,
				"domain":   t.Domain,
			},
		}
	}
	return w.upsertChunked(ctx, points)
}

// UpsertMemoryPoint writes a single long-tier memory point, tagged by
// domain, used by the memory subsystem (component F).
func (w *IndexWriter) UpsertMemoryPoint(ctx context.Context, id uint64, vector []float32, payload map[string]any) error {
	return w.upsertChunked(ctx, []driven.VectorPoint{{ID: id, Vector: vector, Payload: payload}})
}

func (w *IndexWriter) upsertChunked(ctx context.Context, points []driven.VectorPoint) error {
	size := w.chunkSize
	if size <= 0 {
		size = DefaultUpsertChunkSize
	}
	for i := 0; i < len(points); i += size {
		end := i + size
		if end > len(points) {
			end = len(points)
		}
		if err := w.store.Upsert(ctx, points[i:end]); err != nil {
			return fmt.Errorf("upserting points [%d:%d]: %w", i, end, err)
		}
	}
	return nil
}

// Search delegates to the underlying store.
func (w *IndexWriter) Search(ctx context.Context, vector []float32, k int, filter driven.VectorFilter) ([]driven.VectorHit, error) {
	return w.store.Search(ctx, vector, k, filter)
}

// Scroll delegates to the underlying store.
func (w *IndexWriter) Scroll(ctx context.Context, filter driven.VectorFilter, cursor string, limit int) ([]driven.VectorHit, string, error) {
	return w.store.Scroll(ctx, filter, cursor, limit)
}

// Delete delegates to the underlying store.
func (w *IndexWriter) Delete(ctx context.Context, ids []uint64) error {
	return w.store.Delete(ctx, ids)
}

// SnapshotCreate delegates to the underlying store.
func (w *IndexWriter) SnapshotCreate(ctx context.Context) (string, error) {
	return w.store.SnapshotCreate(ctx)
}

// SnapshotRestore delegates to the underlying store.
func (w *IndexWriter) SnapshotRestore(ctx context.Context, name string) error {
	name, err := w.snapshotName(ctx, name)
	if err != nil {
		return err
	}
	logger.Info("restoring vector collection from snapshot %s", name)
	return w.store.SnapshotRestore(ctx, name)
}

func (w *IndexWriter) snapshotName(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: snapshot name is required", domain.ErrInvalidInput)
	}
	return name, nil
}
