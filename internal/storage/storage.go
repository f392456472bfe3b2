// Package storage selects the vector store backend from configuration.
package storage

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"

	"book-rag/internal/chromemdb"
	"book-rag/internal/config"
	"book-rag/internal/db"
	"book-rag/internal/models"
)

// VectorStore is the persisted collection shared by ingestion and query.
type VectorStore interface {
	// Upsert stores records, replacing any with the same ID.
	Upsert(ctx context.Context, records []models.Record) error
	// Query returns at most topK hits ordered by ascending cosine distance.
	Query(ctx context.Context, embedding []float32, topK int) ([]models.Hit, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Close() error
}

// Exporter is implemented by stores that can snapshot themselves to a file.
type Exporter interface {
	Export(ctx context.Context, filePath string) error
}

// Initializer is implemented by stores that need a schema before the first
// write.
type Initializer interface {
	InitDB(ctx context.Context) error
}

var (
	_ VectorStore = (*chromemdb.VectorDBManager)(nil)
	_ VectorStore = (*db.PGVectorStore)(nil)
	_ Exporter    = (*chromemdb.VectorDBManager)(nil)
	_ Initializer = (*db.PGVectorStore)(nil)
)

// Open connects to the configured backend without touching its schema. embed
// is handed to chromem for any text it has to embed itself.
func Open(ctx context.Context, cfg *config.StoreConfig, embed chromem.EmbeddingFunc) (VectorStore, error) {
	switch cfg.Driver {
	case "chromem", "":
		m, err := chromemdb.NewVectorDBManager(chromemdb.Config{
			Path:          cfg.Path,
			Collection:    cfg.Collection,
			Compress:      cfg.Compress,
			EncryptionKey: cfg.EncryptionKey,
			EmbeddingFunc: embed,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case "pgvector":
		sqldb := db.ConnectDB(cfg.Postgres.DSN, cfg.Postgres.Password)
		return db.NewPGVectorStore(db.NewDB(sqldb, cfg.Postgres.Debug), cfg.Postgres.Table, cfg.Postgres.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// OpenForWrite is Open followed by schema setup for backends that need one.
func OpenForWrite(ctx context.Context, cfg *config.StoreConfig, embed chromem.EmbeddingFunc) (VectorStore, error) {
	s, err := Open(ctx, cfg, embed)
	if err != nil {
		return nil, err
	}
	if in, ok := s.(Initializer); ok {
		if err := in.InitDB(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}
