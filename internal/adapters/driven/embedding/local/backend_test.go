package local

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

func ollamaServer(t *testing.T, dim int, short int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		n := len(req.Input) - short
		embeddings := make([][]float32, 0, n)
		for i := 0; i < n; i++ {
			vec := make([]float32, dim)
			vec[0] = float32(i)
			embeddings = append(embeddings, vec)
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	}))
}

func TestEmbedManyBatchShape(t *testing.T) {
	server := ollamaServer(t, 4, 0)
	defer server.Close()

	b := New(server.URL, "all-minilm")
	vecs, err := b.EmbedMany(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 4)
}

func TestEmbedManyCountMismatchIsError(t *testing.T) {
	server := ollamaServer(t, 4, 1)
	defer server.Close()

	b := New(server.URL, "all-minilm")
	_, err := b.EmbedMany(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, domain.ErrVectorCountMismatch)
}

func TestUnreachableDaemonIsTerminal(t *testing.T) {
	b := New("http://127.0.0.1:1", "all-minilm")
	_, err := b.EmbedOne(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestProbeDimension(t *testing.T) {
	server := ollamaServer(t, 384, 0)
	defer server.Close()

	b := New(server.URL, "")
	dim, err := b.ProbeDimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 384, dim)
	assert.Equal(t, domain.BackendLocal, b.Name())
}
