package placeholder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

func TestNameIsDistinctFromDeterministic(t *testing.T) {
	b := New()
	assert.Equal(t, domain.BackendPlaceholder, b.Name())
	assert.NotEqual(t, domain.BackendDeterministic, b.Name())
}

func TestVectorsAreDeterministicAndBounded(t *testing.T) {
	b := New()
	first, err := b.EmbedOne(context.Background(), "text")
	require.NoError(t, err)
	second, err := b.EmbedOne(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, Dimension)
	for _, v := range first {
		assert.GreaterOrEqual(t, v, float32(-1))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestEmbedManyNeverFails(t *testing.T) {
	b := New()
	vecs, err := b.EmbedMany(context.Background(), []string{"a", "", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
}
