package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"book-rag/internal/config"
)

// Embedder is the capability shared by ingestion and query. Both must be
// built from the same config so vectors live in the same space.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

var ErrMissingAPIKey = errors.New("embedding.api_key is required for the openai provider")

// New builds the embedder selected by cfg.Provider.
func New(cfg *config.EmbeddingConfig) (*embeddings.EmbedderImpl, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaEmbedder(cfg)
	case "openai":
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// NewOllamaEmbedder creates an embedder backed by a local Ollama server.
func NewOllamaEmbedder(cfg *config.EmbeddingConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating ollama embedder")

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}
	return newEmbedder(llm, cfg.BatchSize)
}

// NewOpenAIEmbedder creates an embedder for any OpenAI-compatible endpoint.
func NewOpenAIEmbedder(cfg *config.EmbeddingConfig) (*embeddings.EmbedderImpl, error) {
	token := strings.TrimPrefix(cfg.APIKey, "Bearer ")
	if token == "" {
		return nil, ErrMissingAPIKey
	}

	log.Debug().Interface("config", map[string]string{
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating openai embedder")

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai client: %w", err)
	}
	return newEmbedder(llm, cfg.BatchSize)
}

func newEmbedder(client embeddings.EmbedderClient, batchSize int) (*embeddings.EmbedderImpl, error) {
	opts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if batchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(batchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}
