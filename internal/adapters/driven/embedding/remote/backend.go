// Package remote implements the OpenAI-compatible HTTP embedding backend
// variant: bearer-token auth, exponential backoff, and tolerant response
// decoding across the OpenAI and Ollama-native payload shapes.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
	"github.com/mussolene/1c-hbk-helper/internal/core/services"
	"github.com/mussolene/1c-hbk-helper/internal/logger"
)

// DefaultBaseURL is used when no endpoint is configured.
const DefaultBaseURL = "https://api.openai.com/v1"

// DefaultModel is used when no model name is configured.
const DefaultModel = "text-embedding-3-small"

// allowedSchemes whitelists the URL schemes accepted for the remote
// endpoint; anything else is rejected at construction time rather than
// surfacing as an opaque transport error mid-ingest.
var allowedSchemes = map[string]bool{"https": true, "http": true}

const maxRetries = 5

// Config configures the remote embedding backend.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Backend calls a remote, OpenAI-compatible embeddings endpoint.
type Backend struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	dim     int
}

// New validates cfg and constructs the remote backend. An empty or
// disallowed URL scheme is rejected immediately.
func New(cfg Config) (*Backend, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: remote embedding base url: %v", domain.ErrUnsupportedScheme, err)
	}
	if !allowedSchemes[parsed.Scheme] {
		return nil, fmt.Errorf("%w: remote embedding base url scheme %q", domain.ErrUnsupportedScheme, parsed.Scheme)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = services.DefaultEmbeddingTimeout
	}
	return &Backend{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Name identifies this backend for status output.
func (b *Backend) Name() string { return domain.BackendRemote }

// ProbeDimension embeds a short probe string and remembers its length.
func (b *Backend) ProbeDimension(ctx context.Context) (int, error) {
	vecs, err := b.embedBatch(ctx, []string{"."})
	if err != nil {
		return 0, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return 0, fmt.Errorf("remote embedding backend: empty probe response")
	}
	b.dim = len(vecs[0])
	return b.dim, nil
}

// EmbedOne embeds a single input.
func (b *Backend) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("remote embedding backend: expected 1 vector, got %d", len(vecs))
	}
	return vecs[0], nil
}

// EmbedMany embeds a batch of inputs in a single request.
func (b *Backend) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return b.embedBatch(ctx, texts)
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type ollamaNativeResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// embedBatch posts texts to the embeddings endpoint, retrying transport
// errors, 429s, and 5xx responses with exponential backoff, honoring a
// Retry-After header when present.
func (b *Backend) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	endpoint := b.baseURL + "/embeddings"
	payload, err := json.Marshal(embedRequest{Input: texts, Model: b.model})
	if err != nil {
		return nil, fmt.Errorf("remote embedding backend: encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("remote embedding backend: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if b.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+b.apiKey)
		}

		resp, err := b.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("remote embedding backend: %w", err)
			sleep(ctx, retryDelay(attempt))
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			wait := retryDelay(attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					wait = services.ClampRetryAfter(time.Duration(secs) * time.Second)
				}
			}
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("%w: remote embedding backend status %s", domain.ErrRateLimited, resp.Status)
			logger.Warn("remote embedding backend rate limited or unavailable (%s), backing off %s", resp.Status, wait)
			sleep(ctx, wait)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("remote embedding backend: read response: %w", err)
			sleep(ctx, retryDelay(attempt))
			continue
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("remote embedding backend: status %s: %s", resp.Status, string(body))
		}

		vecs, ok := decodeEmbeddings(body, len(texts))
		if ok {
			return vecs, nil
		}
		lastErr = fmt.Errorf("remote embedding backend: unrecognized response shape")
		sleep(ctx, retryDelay(attempt))
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("remote embedding backend: exhausted retries")
	}
	return nil, lastErr
}

func decodeEmbeddings(body []byte, want int) ([][]float32, bool) {
	var openAI openAIResponse
	if err := json.Unmarshal(body, &openAI); err == nil && len(openAI.Data) > 0 {
		out := make([][]float32, len(openAI.Data))
		for _, d := range openAI.Data {
			if d.Index < 0 || d.Index >= len(out) {
				return nil, false
			}
			out[d.Index] = d.Embedding
		}
		return out, true
	}
	var ollama ollamaNativeResponse
	if err := json.Unmarshal(body, &ollama); err == nil && len(ollama.Embeddings) == want {
		return ollama.Embeddings, true
	}
	return nil, false
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := 200 * time.Millisecond << attempt
	return services.ClampRetryAfter(d)
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
