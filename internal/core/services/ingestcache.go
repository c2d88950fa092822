package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
	"github.com/mussolene/1c-hbk-helper/internal/core/ports/driven"
	"github.com/mussolene/1c-hbk-helper/internal/logger"
)

// IngestCache wraps driven.ArchiveCache with content hashing and the
// "read failure degrades to no cache" rule (component B, ): a
// cache that cannot be consulted never blocks ingest, it just stops
// skipping already-indexed archives until the cache recovers.
type IngestCache struct {
	store driven.ArchiveCache
}

// NewIngestCache wraps store. A nil store disables caching entirely —
// every archive is treated as unseen, used when the cache database
// failed to open at startup.
func NewIngestCache(store driven.ArchiveCache) *IngestCache {
	return &IngestCache{store: store}
}

// HashFile computes the content hash of an archive's bytes.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Lookup returns the cached record for hash, degrading to a clean miss
// (nil, nil) on any cache read failure rather than failing ingest.
func (c *IngestCache) Lookup(ctx context.Context, hash string) (*domain.ArchiveRecord, error) {
	if c.store == nil {
		return nil, nil
	}
	rec, err := c.store.Lookup(ctx, hash)
	if err != nil {
		logger.Warn("ingest cache lookup failed, treating %s as unseen: %v", hash, err)
		return nil, nil
	}
	return rec, nil
}

// MarkIndexed records hash as successfully indexed.
func (c *IngestCache) MarkIndexed(ctx context.Context, hash string, meta domain.ArchiveRecord) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.MarkIndexed(ctx, hash, meta); err != nil {
		logger.Warn("ingest cache write failed for %s: %v", hash, err)
	}
	return nil
}

// MarkFailed appends a failure record, never blocking the caller on a
// cache write error.
func (c *IngestCache) MarkFailed(ctx context.Context, path, reason string) {
	if c.store == nil {
		return
	}
	if err := c.store.MarkFailed(ctx, path, reason); err != nil {
		logger.Warn("recording ingest failure for %s: %v", path, err)
	}
}

// RecentFailures returns the most recent failures, or an empty slice on
// any cache read error.
func (c *IngestCache) RecentFailures(ctx context.Context, limit int) []domain.FailureRecord {
	if c.store == nil {
		return nil
	}
	failures, err := c.store.RecentFailures(ctx, limit)
	if err != nil {
		logger.Warn("reading ingest failure log failed: %v", err)
		return nil
	}
	return failures
}

// EraseAll wipes the cache, forcing a full re-ingest on the next run.
func (c *IngestCache) EraseAll(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.EraseAll(ctx)
}

// Close releases the underlying store.
func (c *IngestCache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}
