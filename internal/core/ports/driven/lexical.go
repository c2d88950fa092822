package driven

import (
	"context"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

// LexicalIndex is the in-process keyword index (component I) backing
// keyword_search and the lexical half of get_function_info. It is a
// derived cache: rebuilt from the vector store's Scroll on startup when
// missing or stale, never an independent source of truth.
type LexicalIndex interface {
	// Index adds or updates one topic in the keyword index.
	Index(ctx context.Context, t domain.Topic) error

	// Search returns topics whose title or body contains query
	// (case-insensitive), ranked title-match-first then by BM25 score.
	Search(ctx context.Context, query string, pathPrefix string, k int) ([]domain.SearchResult, error)

	// Count returns the number of indexed documents.
	Count() int

	// Close releases resources held by the index.
	Close() error
}
