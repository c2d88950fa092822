package driven

import (
	"context"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

// ArchiveExtractor unpacks an archive file into a scratch directory. It
// must not mutate the source file and may fall back across multiple
// extraction strategies internally.
type ArchiveExtractor interface {
	// Extract unpacks archivePath into scratchDir, creating it if needed.
	Extract(ctx context.Context, archivePath, scratchDir string) error
}

// HTMLConverter turns an HTML byte string into Markdown. It must be pure:
// no side effects, same input always yields the same output.
type HTMLConverter interface {
	Convert(html []byte) (markdown string, err error)
}

// ArchiveCache is the ingest cache's port: a persistent map
// from archive content-hash to indexed-state, consulted before an
// archive is extracted. A read failure must degrade to "no cache" with
// a warning, never crash ingest — callers are expected to treat a nil,
// nil-error Lookup result the same as a genuine cache miss.
type ArchiveCache interface {
	Lookup(ctx context.Context, hash string) (*domain.ArchiveRecord, error)
	MarkIndexed(ctx context.Context, hash string, meta domain.ArchiveRecord) error
	MarkFailed(ctx context.Context, path, reason string) error
	RecentFailures(ctx context.Context, limit int) ([]domain.FailureRecord, error)
	EraseAll(ctx context.Context) error
	Close() error
}
