package chromemdb

import (
	"context"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"book-rag/internal/models"
)

// Config describes where the collection lives. EmbeddingFunc is only called
// by chromem for documents or queries that arrive without an embedding.
type Config struct {
	Path          string
	Collection    string
	InMemory      bool
	Compress      bool
	EncryptionKey string
	EmbeddingFunc chromem.EmbeddingFunc
}

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db             *chromem.DB
	collectionName string
	embeddingFunc  chromem.EmbeddingFunc
	dbPath         string
	compress       bool
	encryptionKey  string
}

// NewVectorDBManager opens (or creates) the database at cfg.Path.
func NewVectorDBManager(cfg Config) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	return &VectorDBManager{
		db:             db,
		collectionName: cfg.Collection,
		embeddingFunc:  cfg.EmbeddingFunc,
		dbPath:         cfg.Path,
		compress:       cfg.Compress,
		encryptionKey:  cfg.EncryptionKey,
	}, nil
}

// GetOrCreateCollection returns the managed collection, creating it on first use.
func (m *VectorDBManager) GetOrCreateCollection() (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(m.collectionName, map[string]string{"space": "cosine"}, m.embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	return c, nil
}

// Upsert stores records; an existing record with the same ID is replaced.
func (m *VectorDBManager) Upsert(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	c, err := m.GetOrCreateCollection()
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Metadata:  r.Metadata.ToMap(),
			Embedding: r.Embedding,
		}
	}
	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Query returns up to topK records closest to embedding, most similar first.
// A missing or empty collection yields no hits.
func (m *VectorDBManager) Query(ctx context.Context, embedding []float32, topK int) ([]models.Hit, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	c := m.db.GetCollection(m.collectionName, m.embeddingFunc)
	if c == nil {
		log.Debug().Str("collection", m.collectionName).Msg("Collection does not exist")
		return nil, nil
	}
	// chromem rejects nResults larger than the collection
	n := min(topK, c.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := c.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	hits := make([]models.Hit, len(results))
	for i, r := range results {
		hits[i] = models.Hit{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: models.MetadataFromMap(r.Metadata),
			Distance: 1 - float64(r.Similarity),
		}
	}
	return hits, nil
}

// Count returns the number of records in the collection.
func (m *VectorDBManager) Count(_ context.Context) (int, error) {
	c := m.db.GetCollection(m.collectionName, m.embeddingFunc)
	if c == nil {
		return 0, nil
	}
	return c.Count(), nil
}

// Reset drops the collection and everything persisted for it.
func (m *VectorDBManager) Reset(_ context.Context) error {
	if err := m.db.DeleteCollection(m.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Export writes the collection to filePath, encrypted when a key is configured.
func (m *VectorDBManager) Export(_ context.Context, filePath string) error {
	if filePath == "" {
		return fmt.Errorf("export path is required")
	}
	if m.db.GetCollection(m.collectionName, m.embeddingFunc) == nil {
		return fmt.Errorf("collection %q does not exist", m.collectionName)
	}

	log.Debug().
		Str("collection", m.collectionName).
		Str("file", filePath).
		Bool("compress", m.compress).
		Bool("encrypted", m.encryptionKey != "").
		Msg("Exporting collection")

	if err := m.db.ExportToFile(filePath, m.compress, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Close is a no-op: chromem persists every write immediately.
func (m *VectorDBManager) Close() error {
	return nil
}
