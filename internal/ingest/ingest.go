// Package ingest drives the batch pipeline from a directory of books to the
// vector store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"book-rag/internal/chunker"
	"book-rag/internal/embedding"
	"book-rag/internal/helper"
	"book-rag/internal/logger"
	"book-rag/internal/models"
	"book-rag/internal/parser"
)

const DefaultBatchSize = 100

var (
	// ErrNoDocuments means the source directory holds no matching files.
	ErrNoDocuments = errors.New("no matching documents found")
	// ErrEmptyText means extraction succeeded but produced no usable text.
	ErrEmptyText = errors.New("no text extracted")
	// ErrDuplicateBook means an earlier file in the run already produced the
	// same book name, and so the same chunk IDs.
	ErrDuplicateBook = errors.New("duplicate book name")
)

// Store is the write side of the vector store.
type Store interface {
	Upsert(ctx context.Context, records []models.Record) error
}

type Options struct {
	// BatchSize bounds how many chunks are embedded and stored at once.
	BatchSize int
	// Extensions selects which files in the source directory are ingested.
	Extensions []string
	// SummaryPath is overwritten after every successful run; empty disables it.
	SummaryPath string
}

// DocumentResult is the outcome of extracting and chunking one document.
type DocumentResult struct {
	Book   string
	Source string
	Chunks []models.Chunk
	Err    error
}

func (r DocumentResult) OK() bool { return r.Err == nil }

type Service struct {
	extractor parser.Extractor
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	store     Store
	opts      Options
}

func NewService(extractor parser.Extractor, ch *chunker.Chunker, embedder embedding.Embedder, store Store, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".pdf"}
	}
	return &Service{
		extractor: extractor,
		chunker:   ch,
		embedder:  embedder,
		store:     store,
		opts:      opts,
	}
}

// Discover lists matching files in dir, sorted by name. Subdirectories are
// not searched.
func (s *Service) Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !s.matches(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

func (s *Service) matches(name string) bool {
	ext := filepath.Ext(name)
	for _, want := range s.opts.Extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// BookName is the file name without its extension.
func BookName(filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ProcessDocument extracts, normalizes and chunks one file. Failures are
// reported in the result, never returned.
func (s *Service) ProcessDocument(ctx context.Context, filePath string) DocumentResult {
	res := DocumentResult{Book: BookName(filePath), Source: filepath.Base(filePath)}

	raw, err := s.extractor.Extract(ctx, filePath)
	if err != nil {
		res.Err = fmt.Errorf("failed to extract text: %w", err)
		return res
	}

	text := chunker.Normalize(raw)
	if text == "" {
		res.Err = ErrEmptyText
		return res
	}

	for i, c := range s.chunker.Split(text) {
		res.Chunks = append(res.Chunks, models.Chunk{
			Book:    res.Book,
			Source:  res.Source,
			Index:   i,
			Content: c,
		})
	}
	return res
}

// Run ingests every matching document in dir and writes the summary. Embedding
// or storage failures abort the run; batches stored before the failure stay
// stored.
func (s *Service) Run(ctx context.Context, dir string) (*models.Summary, error) {
	l := logger.FromContext(ctx)

	files, err := s.Discover(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		l.Warn().Str("dir", dir).Strs("extensions", s.opts.Extensions).Msg("No matching files found in the source folder")
		return nil, ErrNoDocuments
	}
	l.Info().Int("files", len(files)).Msg("Starting to process books")

	results := make([]DocumentResult, 0, len(files))
	seen := make(map[string]string, len(files))
	var chunks []models.Chunk
	for _, f := range files {
		book, source := BookName(f), filepath.Base(f)
		l.Info().Str("file", source).Msg("Processing")

		var res DocumentResult
		if first, ok := seen[book]; ok {
			res = DocumentResult{
				Book:   book,
				Source: source,
				Err:    fmt.Errorf("%w: %s already ingested as %q", ErrDuplicateBook, first, book),
			}
		} else {
			seen[book] = source
			res = s.ProcessDocument(ctx, f)
		}
		results = append(results, res)

		switch {
		case errors.Is(res.Err, ErrDuplicateBook):
			l.Warn().Str("file", res.Source).Str("book", res.Book).Msg("Book name already used in this run, skipping")
		case errors.Is(res.Err, ErrEmptyText):
			l.Warn().Str("file", res.Source).Msg("No text extracted, skipping")
		case res.Err != nil:
			l.Error().Err(res.Err).Str("file", res.Source).Msg("Error reading document, skipping")
		default:
			l.Info().Str("file", res.Source).Int("chunks", len(res.Chunks)).Msg("Processed document")
			chunks = append(chunks, res.Chunks...)
		}
	}

	l.Info().Int("chunks", len(chunks)).Msg("Generating embeddings and storing in database")
	if err := s.storeBatches(ctx, chunks); err != nil {
		return nil, err
	}

	summary := BuildSummary(results)
	l.Info().
		Int("chunks", summary.TotalChunks).
		Int("books", len(summary.BooksProcessed)).
		Int("skipped", len(summary.BooksSkipped)).
		Msg("Successfully processed books")

	if s.opts.SummaryPath != "" {
		if err := helper.WriteJSONFile(s.opts.SummaryPath, summary); err != nil {
			return &summary, fmt.Errorf("failed to write summary: %w", err)
		}
		l.Info().Str("path", s.opts.SummaryPath).Msg("Processing complete, summary saved")
	}
	return &summary, nil
}

func (s *Service) storeBatches(ctx context.Context, chunks []models.Chunk) error {
	l := logger.FromContext(ctx)
	size := s.opts.BatchSize
	total := (len(chunks) + size - 1) / size

	for i := 0; i < len(chunks); i += size {
		batch := chunks[i:min(i+size, len(chunks))]
		n := i/size + 1

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Content
		}

		vectors, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed batch %d/%d: %w", n, total, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("failed to embed batch %d/%d: got %d vectors for %d chunks", n, total, len(vectors), len(batch))
		}

		records := make([]models.Record, len(batch))
		for j, c := range batch {
			records[j] = models.NewRecord(c, vectors[j])
		}
		if err := s.store.Upsert(ctx, records); err != nil {
			return fmt.Errorf("failed to store batch %d/%d: %w", n, total, err)
		}
		l.Info().Msgf("Processed batch %d/%d", n, total)
	}
	return nil
}

// BuildSummary aggregates per-document results. TotalBooks counts every
// discovered document, skipped ones included.
func BuildSummary(results []DocumentResult) models.Summary {
	summary := models.Summary{
		TotalBooks:     len(results),
		BooksProcessed: make([]string, 0, len(results)),
	}
	for _, r := range results {
		if !r.OK() {
			summary.BooksSkipped = append(summary.BooksSkipped, models.SkippedBook{Book: r.Book, Reason: r.Err.Error()})
			continue
		}
		summary.BooksProcessed = append(summary.BooksProcessed, r.Book)
		summary.TotalChunks += len(r.Chunks)
	}
	return summary
}
