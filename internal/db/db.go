package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"book-rag/internal/models"
)

// Vector is a pgvector value, encoded as '[x,y,z]'.
type Vector []float32

func (v Vector) Value() (driver.Value, error) {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String(), nil
}

type Document struct {
	bun.BaseModel `bun:"table:book_chunks,alias:r"`
	ID            string  `bun:"id,pk"`
	Content       string  `bun:"content,notnull"`
	Book          string  `bun:"book"`
	ChunkID       int     `bun:"chunk_id"`
	Source        string  `bun:"source"`
	Embedding     Vector  `bun:"embedding,type:vector"`
	Distance      float64 `bun:"distance,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(dsn, password string) *sql.DB {
	if !strings.Contains(dsn, "?") {
		dsn += "?sslmode=disable"
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if password != "" {
		opts = append(opts, pgdriver.WithPassword(password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...))
}

// PGVectorStore keeps records in a Postgres table with a pgvector column and
// ranks them by cosine distance.
type PGVectorStore struct {
	db         *bun.DB
	table      string
	dimensions int
}

func NewPGVectorStore(db *bun.DB, table string, dimensions int) *PGVectorStore {
	return &PGVectorStore{db: db, table: pq.QuoteIdentifier(table), dimensions: dimensions}
}

// InitDB creates the vector extension and the table if they are missing.
func (s *PGVectorStore) InitDB(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.createTableSQL()); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

func (s *PGVectorStore) createTableSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id text PRIMARY KEY,
	content text NOT NULL,
	book text,
	chunk_id integer,
	source text,
	embedding vector(%d) NOT NULL
)`, s.table, s.dimensions)
}

func (s *PGVectorStore) upsertQuery(records []models.Record) *bun.InsertQuery {
	docs := make([]Document, len(records))
	for i, r := range records {
		docs[i] = Document{
			ID:        r.ID,
			Content:   r.Content,
			Book:      r.Metadata.Book,
			ChunkID:   r.Metadata.ChunkID,
			Source:    r.Metadata.Source,
			Embedding: Vector(r.Embedding),
		}
	}
	return s.db.NewInsert().
		Model(&docs).
		ModelTableExpr(s.table).
		On("CONFLICT (id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("book = EXCLUDED.book").
		Set("chunk_id = EXCLUDED.chunk_id").
		Set("source = EXCLUDED.source").
		Set("embedding = EXCLUDED.embedding")
}

// Upsert inserts records, replacing rows that share an ID.
func (s *PGVectorStore) Upsert(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	if _, err := s.upsertQuery(records).Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert documents: %w", err)
	}
	return nil
}

func (s *PGVectorStore) searchQuery(docs *[]Document, embedding []float32, limit int) *bun.SelectQuery {
	return s.db.NewSelect().
		Model(docs).
		ModelTableExpr(s.table+" AS r").
		ColumnExpr("r.id, r.content, r.book, r.chunk_id, r.source").
		ColumnExpr("r.embedding <=> ?::vector AS distance", Vector(embedding)).
		OrderExpr("distance ASC").
		Limit(limit)
}

// Query returns up to topK rows ordered by ascending cosine distance.
func (s *PGVectorStore) Query(ctx context.Context, embedding []float32, topK int) ([]models.Hit, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	if topK <= 0 {
		return nil, nil
	}
	var docs []Document
	if err := s.searchQuery(&docs, embedding, topK).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	hits := make([]models.Hit, len(docs))
	for i, d := range docs {
		hits[i] = models.Hit{
			ID:       d.ID,
			Content:  d.Content,
			Metadata: models.Metadata{Book: d.Book, ChunkID: d.ChunkID, Source: d.Source},
			Distance: d.Distance,
		}
	}
	return hits, nil
}

func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*Document)(nil)).ModelTableExpr(s.table + " AS r").Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Reset removes every row but keeps the table.
func (s *PGVectorStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "TRUNCATE TABLE "+s.table); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", s.table, err)
	}
	return nil
}

func (s *PGVectorStore) Close() error {
	return s.db.Close()
}
