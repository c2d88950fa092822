// Package local implements the "local model" embedding backend variant:
// in-process from the operator's point of view — no external API key, no
// egress — even though the call crosses a loopback HTTP boundary to an
// Ollama daemon. Errors from this backend are terminal for the call: no
// rate limiting, no retry-based fallback, no placeholder substitution.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

// DefaultURL is the loopback Ollama endpoint used when none is configured.
const DefaultURL = "http://localhost:11434"

// Backend calls a local Ollama daemon's /api/embed endpoint.
type Backend struct {
	url    string
	model  string
	client *http.Client
	dim    int
}

// New constructs the local backend. url defaults to DefaultURL; model
// defaults to "all-minilm".
func New(url, model string) *Backend {
	if url == "" {
		url = DefaultURL
	}
	if model == "" {
		model = "all-minilm"
	}
	return &Backend{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Name identifies this backend for status output.
func (b *Backend) Name() string { return domain.BackendLocal }

// ProbeDimension issues a lightweight embed call and remembers its length.
func (b *Backend) ProbeDimension(ctx context.Context) (int, error) {
	vecs, err := b.embed(ctx, []string{"."})
	if err != nil {
		return 0, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return 0, fmt.Errorf("local embedding backend: empty probe response")
	}
	b.dim = len(vecs[0])
	return b.dim, nil
}

// EmbedOne embeds a single input.
func (b *Backend) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("local embedding backend: expected 1 vector, got %d", len(vecs))
	}
	return vecs[0], nil
}

// EmbedMany embeds a batch of inputs via the Ollama batch input shape.
func (b *Backend) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return b.embed(ctx, texts)
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (b *Backend) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: b.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("local embedding backend: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("local embedding backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local embedding backend unreachable at %s: %w", b.url, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("local embedding backend: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("local embedding backend: status %s: %s", resp.Status, string(payload))
	}
	var out ollamaEmbedResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("local embedding backend: decode response: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: local backend returned %d vectors for %d inputs", domain.ErrVectorCountMismatch, len(out.Embeddings), len(texts))
	}
	return out.Embeddings, nil
}
