package services

import "crypto/sha256"

// placeholderVector produces a deterministic hash-derived vector for text,
// used whenever a backend call fails after all retries: sha256 digest
// bytes cycled and rescaled into [-1, 1].
func placeholderVector(text string, dimension int) []float32 {
	if dimension <= 0 {
		dimension = 384
	}
	h := sha256.Sum256([]byte(text))
	out := make([]float32, dimension)
	for i := range out {
		out[i] = (float32(h[i%len(h)]) - 128) / 128.0
	}
	return out
}
