package hashing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flarexio/ragblade/embedding"
)

func TestTokenize(t *testing.T) {
	assert := assert.New(t)

	assert.Equal([]string{"don't", "panic", "42"}, Tokenize("Don't PANIC, 42!"))
	assert.Equal([]string{"向量", "量检", "检索"}, Tokenize("向量检索"))
	assert.Equal([]string{"rag", "系统"}, Tokenize("RAG系统"))
	assert.Equal([]string{"字"}, Tokenize("字"))
	assert.Empty(Tokenize("  ...  "))
}

func TestModelDeterministic(t *testing.T) {
	assert := assert.New(t)

	m := New(64)
	ctx := context.Background()

	a, err := m.Encode(ctx, []string{"the quick brown fox", "向量检索"})
	require.NoError(t, err)

	b, err := New(64).Encode(ctx, []string{"the quick brown fox", "向量检索"})
	require.NoError(t, err)

	assert.Equal(a, b)
	assert.Len(a[0], 64)
	assert.NotEqual(make([]float32, 64), a[1])
}

func TestModelWithService(t *testing.T) {
	assert := assert.New(t)

	svc := embedding.NewService(embedding.Config{Dimension: DefaultDimension}, embedding.StaticLoader(New(0)))
	ctx := context.Background()

	doc, err := svc.Embedding(ctx, "vector search over chunked documents", true)
	require.NoError(t, err)

	related, err := svc.Embedding(ctx, "search documents", true)
	require.NoError(t, err)

	unrelated, err := svc.Embedding(ctx, "banana smoothie recipe", true)
	require.NoError(t, err)

	near, err := embedding.ComputeSimilarity(doc, related, embedding.MetricCosine)
	require.NoError(t, err)

	far, err := embedding.ComputeSimilarity(doc, unrelated, embedding.MetricCosine)
	require.NoError(t, err)

	assert.Greater(near, far)

	symbols, err := svc.Embedding(ctx, "?!", true)
	require.NoError(t, err)
	assert.InDelta(1.0, dotSelf(symbols), 1e-5)
}

func dotSelf(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return sum
}
