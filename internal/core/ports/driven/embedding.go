// Package driven declares the secondary/outbound ports consumed by the
// core services: embedding backends, the vector store, the archive
// extractor, the HTML→Markdown converter, and the ingest cache.
package driven

import "context"

// EmbeddingBackend is the small interface every embedding backend variant
// implements (local model, remote OpenAI-compatible API, deterministic
// hash embedding, placeholder). The dispatcher wraps whichever backend is
// selected with the cross-cutting concerns — sanitize, truncate, retry,
// semaphore, timeouts — so backends themselves stay simple.
type EmbeddingBackend interface {
	// EmbedOne returns a single vector for text.
	EmbedOne(ctx context.Context, text string) ([]float32, error)

	// EmbedMany returns one vector per input, in input order. The result
	// length must equal len(texts).
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)

	// ProbeDimension returns the vector dimension this backend produces,
	// discovering it from a live call on backends where it is not fixed.
	ProbeDimension(ctx context.Context) (int, error)

	// Name identifies the backend, used in status output and logging.
	Name() string
}
