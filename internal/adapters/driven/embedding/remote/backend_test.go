package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

func openAIServer(t *testing.T, dim int, calls *atomic.Int32, before func(w http.ResponseWriter, call int32) bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := calls.Add(1)
		if before != nil && before(w, call) {
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dim)
			vec[0] = float32(i + 1)
			data[i] = map[string]any{"embedding": vec, "index": i}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func TestNewRejectsNonHTTPScheme(t *testing.T) {
	_, err := New(Config{BaseURL: "ftp://example.com"})
	require.ErrorIs(t, err, domain.ErrUnsupportedScheme)

	_, err = New(Config{BaseURL: "file:///etc/passwd"})
	require.ErrorIs(t, err, domain.ErrUnsupportedScheme)
}

func TestNewAcceptsHTTPAndHTTPS(t *testing.T) {
	for _, url := range []string{"http://localhost:9999", "https://api.example.com/v1"} {
		_, err := New(Config{BaseURL: url})
		assert.NoError(t, err, url)
	}
}

func TestEmbedManyDecodesOpenAIShape(t *testing.T) {
	var calls atomic.Int32
	server := openAIServer(t, 4, &calls, nil)
	defer server.Close()

	b, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	vecs, err := b.EmbedMany(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(3), vecs[2][0], "vectors come back in request order")
}

func TestEmbedManyRetriesAfter429(t *testing.T) {
	var calls atomic.Int32
	server := openAIServer(t, 2, &calls, func(w http.ResponseWriter, call int32) bool {
		if call == 1 {
			w.Header().Set("Retry-After", "0")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return true
		}
		return false
	})
	defer server.Close()

	b, err := New(Config{BaseURL: server.URL, Timeout: 10 * time.Second})
	require.NoError(t, err)

	start := time.Now()
	vecs, err := b.EmbedMany(context.Background(), []string{"x"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, int32(2), calls.Load(), "the 429 is retried once")
	assert.GreaterOrEqual(t, time.Since(start), time.Second, "a zero Retry-After clamps to the minimum backoff")
}

func TestEmbedManyRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	server := openAIServer(t, 2, &calls, func(w http.ResponseWriter, call int32) bool {
		if call == 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return true
		}
		return false
	})
	defer server.Close()

	b, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	vecs, err := b.EmbedMany(context.Background(), []string{"x"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
}

func TestEmbedManyClientErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	server := openAIServer(t, 2, &calls, func(w http.ResponseWriter, _ int32) bool {
		http.Error(w, "bad request", http.StatusBadRequest)
		return true
	})
	defer server.Close()

	b, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = b.EmbedMany(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx other than 429 is not retried")
}

func TestProbeDimensionDiscoversSize(t *testing.T) {
	var calls atomic.Int32
	server := openAIServer(t, 768, &calls, nil)
	defer server.Close()

	b, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	dim, err := b.ProbeDimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 768, dim)
}

func TestEmbedOneReturnsSingleVector(t *testing.T) {
	var calls atomic.Int32
	server := openAIServer(t, 3, &calls, nil)
	defer server.Close()

	b, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	vec, err := b.EmbedOne(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
}
