package models

import (
	"fmt"
	"strconv"
)

// Chunk represents one word window of a book's normalized text
type Chunk struct {
	Book    string
	Source  string
	Index   int
	Content string
}

// ID returns the collection-wide identifier of the chunk.
func (c Chunk) ID() string {
	return ChunkID(c.Book, c.Index)
}

// ChunkID builds the identifier `{book}_chunk_{index}`.
func ChunkID(book string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", book, index)
}

// Metadata is stored alongside every record and returned with query results.
type Metadata struct {
	Book    string `json:"book"`
	ChunkID int    `json:"chunk_id"`
	Source  string `json:"source"`
}

// ToMap flattens metadata for stores that only keep string values.
func (m Metadata) ToMap() map[string]string {
	return map[string]string{
		MetaBook:    m.Book,
		MetaChunkID: strconv.Itoa(m.ChunkID),
		MetaSource:  m.Source,
	}
}

// MetadataFromMap is the inverse of ToMap. A malformed chunk id reads as 0.
func MetadataFromMap(m map[string]string) Metadata {
	id, _ := strconv.Atoi(m[MetaChunkID])
	return Metadata{
		Book:    m[MetaBook],
		ChunkID: id,
		Source:  m[MetaSource],
	}
}

// Record is the persisted unit of the collection.
type Record struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  Metadata
}

// NewRecord pairs a chunk with its embedding.
func NewRecord(c Chunk, embedding []float32) Record {
	return Record{
		ID:        c.ID(),
		Content:   c.Content,
		Embedding: embedding,
		Metadata:  Metadata{Book: c.Book, ChunkID: c.Index, Source: c.Source},
	}
}

// Hit is a record returned by a nearest-neighbour query, closest first.
type Hit struct {
	ID       string
	Content  string
	Metadata Metadata
	Distance float64
}

// QueryResult is the shape written to stdout by the query CLI.
type QueryResult struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
	Score    float64  `json:"score"`
}

// SkippedBook records why a document contributed no chunks.
type SkippedBook struct {
	Book   string `json:"book"`
	Reason string `json:"reason"`
}

// Summary is written once per ingestion run.
type Summary struct {
	TotalBooks     int           `json:"total_books"`
	TotalChunks    int           `json:"total_chunks"`
	BooksProcessed []string      `json:"books_processed"`
	BooksSkipped   []SkippedBook `json:"books_skipped,omitempty"`
}
