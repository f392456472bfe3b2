package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"book-rag/internal/chromemdb"
	"book-rag/internal/embedding/embeddingtest"
	"book-rag/internal/models"
)

type stubSearcher struct {
	hits []models.Hit
	err  error
	topK int
}

func (s *stubSearcher) Query(_ context.Context, _ []float32, topK int) ([]models.Hit, error) {
	s.topK = topK
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

func TestQuery_ConvertsDistanceToScore(t *testing.T) {
	store := &stubSearcher{hits: []models.Hit{
		{ID: "a_chunk_0", Content: "first", Metadata: models.Metadata{Book: "a", ChunkID: 0, Source: "a.pdf"}, Distance: 0.1},
		{ID: "a_chunk_1", Content: "second", Metadata: models.Metadata{Book: "a", ChunkID: 1, Source: "a.pdf"}, Distance: 0.4},
	}}
	r := NewRAG(embeddingtest.NewHashEmbedder(8), store)

	results, err := r.Query(context.Background(), "meditation", 3)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 3, store.topK)
	assert.Equal(t, "first", results[0].Content)
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)
	assert.InDelta(t, 0.6, results[1].Score, 1e-9)
	assert.Equal(t, models.Metadata{Book: "a", ChunkID: 1, Source: "a.pdf"}, results[1].Metadata)
}

func TestQuery_InvalidInput(t *testing.T) {
	r := NewRAG(embeddingtest.NewHashEmbedder(8), &stubSearcher{})

	_, err := r.Query(context.Background(), "   ", 5)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = r.Query(context.Background(), "karma", 0)
	assert.ErrorIs(t, err, ErrInvalidTopK)
}

func TestSearch_ErrorsYieldEmptyList(t *testing.T) {
	ctx := context.Background()

	results := NewRAG(embeddingtest.FailingEmbedder{}, &stubSearcher{}).Search(ctx, "karma", 5)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	results = NewRAG(embeddingtest.NewHashEmbedder(8), &stubSearcher{err: errors.New("db down")}).Search(ctx, "karma", 5)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearch_EmptyCollection(t *testing.T) {
	store, err := chromemdb.NewVectorDBManager(chromemdb.Config{Collection: "empty", InMemory: true})
	require.NoError(t, err)

	results := NewRAG(embeddingtest.NewHashEmbedder(8), store).Search(context.Background(), "anything", 5)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearch_DoesNotPad(t *testing.T) {
	ctx := context.Background()
	emb := embeddingtest.NewHashEmbedder(32)
	store, err := chromemdb.NewVectorDBManager(chromemdb.Config{Collection: "small", InMemory: true})
	require.NoError(t, err)

	texts := []string{"the river flows", "mountains stand still", "the river returns to the sea"}
	vectors, err := emb.EmbedDocuments(ctx, texts)
	require.NoError(t, err)
	records := make([]models.Record, len(texts))
	for i, text := range texts {
		records[i] = models.NewRecord(models.Chunk{Book: "tao", Source: "tao.pdf", Index: i, Content: text}, vectors[i])
	}
	require.NoError(t, store.Upsert(ctx, records))

	results := NewRAG(emb, store).Search(ctx, "the river flows", 5)
	require.Len(t, results, 3)
	assert.Equal(t, "the river flows", results[0].Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-3)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}
}

func TestScore(t *testing.T) {
	assert.Equal(t, 1.0, Score(0))
	assert.Equal(t, 0.0, Score(1))
	assert.Equal(t, -1.0, Score(2))
}
