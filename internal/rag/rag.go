// Package rag answers natural-language queries against the ingested chunks.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"book-rag/internal/embedding"
	"book-rag/internal/logger"
	"book-rag/internal/models"
)

const DefaultTopK = 5

var (
	ErrEmptyQuery  = errors.New("query text is empty")
	ErrInvalidTopK = errors.New("top_k must be a positive integer")
)

// Searcher is the read side of the vector store.
type Searcher interface {
	Query(ctx context.Context, embedding []float32, topK int) ([]models.Hit, error)
}

type RAG struct {
	embedder embedding.Embedder
	store    Searcher
}

func NewRAG(embedder embedding.Embedder, store Searcher) *RAG {
	return &RAG{embedder: embedder, store: store}
}

// Query embeds q and returns up to topK results, most similar first.
// The result is never padded when fewer chunks are stored.
func (r *RAG) Query(ctx context.Context, q string, topK int) ([]models.QueryResult, error) {
	if strings.TrimSpace(q) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	queryEmbedding, err := r.embedder.EmbedQuery(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := r.store.Query(ctx, queryEmbedding, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search collection: %w", err)
	}

	results := make([]models.QueryResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, models.QueryResult{
			Content:  h.Content,
			Metadata: h.Metadata,
			Score:    Score(h.Distance),
		})
	}
	return results, nil
}

// Search is Query for the CLI: any failure is logged and yields an empty,
// non-nil list.
func (r *RAG) Search(ctx context.Context, q string, topK int) []models.QueryResult {
	results, err := r.Query(ctx, q, topK)
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("query", q).Msg("Error querying database")
		return []models.QueryResult{}
	}
	return results
}

// Score converts a cosine distance into a similarity score.
func Score(distance float64) float64 {
	return 1 - distance
}
