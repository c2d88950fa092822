// Package deterministic implements the offline, reproducible embedding
// backend: hash-derived 384-dimensional vectors used to build a
// usable-but-shallow index when no model is available.
package deterministic

import (
	"context"
	"crypto/sha256"
	"regexp"
	"strings"
	"unicode"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

// Dimension is the fixed vector size for the deterministic backend.
const Dimension = 384

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+|[^\p{L}\p{N}\s]`)

// Backend is a stateless, network-free embedding backend that hashes
// tokens into a fixed-size accumulator. Reproducible: the same text
// always yields the same vector, on any host, forever.
type Backend struct{}

// New constructs the deterministic backend.
func New() *Backend { return &Backend{} }

// Name identifies this backend for status output.
func (b *Backend) Name() string { return domain.BackendDeterministic }

// ProbeDimension returns the fixed dimension without any I/O.
func (b *Backend) ProbeDimension(context.Context) (int, error) { return Dimension, nil }

// EmbedOne tokenizes text and folds token hashes into a Dimension-length
// vector, normalized by token count.
func (b *Backend) EmbedOne(_ context.Context, text string) ([]float32, error) {
	return embed(text), nil
}

// EmbedMany embeds each input independently; the deterministic backend
// has no meaningful batching to offer.
func (b *Backend) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embed(t)
	}
	return out, nil
}

func embed(text string) []float32 {
	lower := strings.ToLower(text)
	tokens := tokenPattern.FindAllString(lower, -1)
	vec := make([]float32, Dimension)
	if len(tokens) == 0 {
		return vec
	}
	for _, tok := range tokens {
		sum := sha256.Sum256([]byte(tok))
		h := uint32(sum[0])<<24 | uint32(sum[1])<<16 | uint32(sum[2])<<8 | uint32(sum[3])
		bucket := h % Dimension
		vec[bucket] += float32(int(h%256)-128) / 128.0
	}
	n := float32(len(tokens))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

// isWordRune reports whether r participates in tokenization; the token
// class above includes underscore alongside letters and digits.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
