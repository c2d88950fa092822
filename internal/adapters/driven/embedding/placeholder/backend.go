// Package placeholder implements the "no embedding backend" variant:
// fixed zero-ish vectors so semantic search degrades to lexical only
// while the index remains fully populated.
package placeholder

import (
	"context"
	"crypto/sha256"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

// Dimension is the vector size the placeholder backend reports, matching
// whatever the deployment's declared default is (384 by convention, same
// as the deterministic backend, so switching between them never forces
// a collection recreate).
const Dimension = 384

// Backend produces deterministic hash-derived placeholder vectors. It
// never errors and never calls out to the network.
type Backend struct{}

// New constructs the placeholder backend.
func New() *Backend { return &Backend{} }

// Name identifies this backend distinctly from "deterministic" — status
// output must never conflate "no backend configured" with the real,
// if shallow, deterministic embedding source.
func (b *Backend) Name() string { return domain.BackendPlaceholder }

// ProbeDimension returns the fixed placeholder dimension.
func (b *Backend) ProbeDimension(context.Context) (int, error) { return Dimension, nil }

// EmbedOne returns a fixed hash-derived vector for text.
func (b *Backend) EmbedOne(_ context.Context, text string) ([]float32, error) {
	return vector(text), nil
}

// EmbedMany returns one placeholder vector per input.
func (b *Backend) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vector(t)
	}
	return out, nil
}

func vector(text string) []float32 {
	h := sha256.Sum256([]byte(text))
	out := make([]float32, Dimension)
	for i := range out {
		out[i] = (float32(h[i%len(h)]) - 128) / 128000.0
	}
	return out
}
