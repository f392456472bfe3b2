package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"book-rag/internal/chromemdb"
	"book-rag/internal/chunker"
	"book-rag/internal/embedding/embeddingtest"
	"book-rag/internal/models"
	"book-rag/internal/parser"
	"book-rag/internal/rag"
)

type memoryStore struct {
	mu      sync.Mutex
	records []models.Record
	batches []int
	err     error
}

func (m *memoryStore) Upsert(_ context.Context, records []models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, records...)
	m.batches = append(m.batches, len(records))
	return nil
}

func wordText(n int) string {
	ws := make([]string, n)
	for i := range ws {
		ws[i] = fmt.Sprintf("w%03d", i)
	}
	return strings.Join(ws, " ")
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

var errBroken = errors.New("broken file")

func testRegistry() *parser.Registry {
	r := parser.NewRegistry()
	r.Register(".bad", parser.ExtractorFunc(func(context.Context, string) (string, error) {
		return "", errBroken
	}))
	return r
}

func smallChunker(t *testing.T) *chunker.Chunker {
	t.Helper()
	c, err := chunker.New(10, 0, 5)
	require.NoError(t, err)
	return c
}

func TestRun_MixedDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "alpha.txt", wordText(70))
	writeFile(t, dir, "blank.txt", "  \n\t ")
	writeFile(t, dir, "corrupt.bad", "ignored")
	writeFile(t, dir, "notes.md", "not selected")

	summaryPath := filepath.Join(t.TempDir(), "out", "summary.json")
	store := &memoryStore{}
	emb := embeddingtest.NewHashEmbedder(16)
	svc := NewService(testRegistry(), smallChunker(t), emb, store, Options{
		BatchSize:   3,
		Extensions:  []string{".txt", ".bad"},
		SummaryPath: summaryPath,
	})

	summary, err := svc.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalBooks)
	assert.Equal(t, 7, summary.TotalChunks)
	assert.Equal(t, []string{"alpha"}, summary.BooksProcessed)
	require.Len(t, summary.BooksSkipped, 2)
	assert.Equal(t, "blank", summary.BooksSkipped[0].Book)
	assert.Contains(t, summary.BooksSkipped[0].Reason, ErrEmptyText.Error())
	assert.Equal(t, "corrupt", summary.BooksSkipped[1].Book)
	assert.Contains(t, summary.BooksSkipped[1].Reason, errBroken.Error())

	assert.Equal(t, []int{3, 3, 1}, store.batches)
	require.Len(t, store.records, 7)
	for i, r := range store.records {
		assert.Equal(t, fmt.Sprintf("alpha_chunk_%d", i), r.ID)
		assert.Equal(t, models.Metadata{Book: "alpha", ChunkID: i, Source: "alpha.txt"}, r.Metadata)
		assert.Len(t, r.Embedding, 16)
	}
	assert.Equal(t, "w000 w001 w002 w003 w004 w005 w006 w007 w008 w009", store.records[0].Content)
	assert.Len(t, emb.Batches(), 3)

	data, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.EqualValues(t, 3, onDisk["total_books"])
	assert.EqualValues(t, 7, onDisk["total_chunks"])
	assert.Equal(t, []any{"alpha"}, onDisk["books_processed"])
}

func TestRun_DocumentWithOnlyShortChunks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tiny.txt", "one two")

	store := &memoryStore{}
	svc := NewService(testRegistry(), chunker.NewDefault(), embeddingtest.NewHashEmbedder(8), store, Options{Extensions: []string{".txt"}})

	summary, err := svc.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalBooks)
	assert.Zero(t, summary.TotalChunks)
	assert.Equal(t, []string{"tiny"}, summary.BooksProcessed)
	assert.Empty(t, summary.BooksSkipped)
	assert.Empty(t, store.records)
}

func TestRun_NoDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "readme.md", wordText(100))

	summaryPath := filepath.Join(t.TempDir(), "summary.json")
	svc := NewService(testRegistry(), smallChunker(t), embeddingtest.NewHashEmbedder(8), &memoryStore{}, Options{
		Extensions:  []string{".pdf"},
		SummaryPath: summaryPath,
	})

	summary, err := svc.Run(context.Background(), dir)
	assert.ErrorIs(t, err, ErrNoDocuments)
	assert.Nil(t, summary)
	assert.NoFileExists(t, summaryPath)
}

func TestRun_MissingDirectory(t *testing.T) {
	svc := NewService(testRegistry(), smallChunker(t), embeddingtest.NewHashEmbedder(8), &memoryStore{}, Options{})
	_, err := svc.Run(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoDocuments)
}

func TestRun_EmbeddingFailureAborts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "alpha.txt", wordText(30))

	summaryPath := filepath.Join(t.TempDir(), "summary.json")
	store := &memoryStore{}
	svc := NewService(testRegistry(), smallChunker(t), embeddingtest.FailingEmbedder{}, store, Options{
		Extensions:  []string{".txt"},
		SummaryPath: summaryPath,
	})

	_, err := svc.Run(context.Background(), dir)
	assert.ErrorIs(t, err, embeddingtest.ErrEmbed)
	assert.Empty(t, store.records)
	assert.NoFileExists(t, summaryPath)
}

func TestRun_StoreFailureAborts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "alpha.txt", wordText(30))

	storeErr := errors.New("disk full")
	svc := NewService(testRegistry(), smallChunker(t), embeddingtest.NewHashEmbedder(8), &memoryStore{err: storeErr}, Options{
		Extensions: []string{".txt"},
	})

	_, err := svc.Run(context.Background(), dir)
	assert.ErrorIs(t, err, storeErr)
}

func TestDiscover_FiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.pdf", "")
	writeFile(t, dir, "A.PDF", "")
	writeFile(t, dir, "c.txt", "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755))

	svc := NewService(testRegistry(), smallChunker(t), embeddingtest.NewHashEmbedder(8), &memoryStore{}, Options{})

	files, err := svc.Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "A.PDF"), filepath.Join(dir, "b.pdf")}, files)
}

func TestBookName(t *testing.T) {
	assert.Equal(t, "The Gita", BookName("/books/The Gita.pdf"))
	assert.Equal(t, "archive.tar", BookName("archive.tar.gz"))
	assert.Equal(t, "noext", BookName("noext"))
}

func TestBuildSummary_Empty(t *testing.T) {
	s := BuildSummary(nil)
	assert.Zero(t, s.TotalBooks)
	assert.NotNil(t, s.BooksProcessed)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_books":0,"total_chunks":0,"books_processed":[]}`, string(data))
}

func TestRun_DuplicateBookNames(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "gita.txt", wordText(600))
	writeFile(t, dir, "gita.TXT", wordText(600))
	writeFile(t, dir, "gita.md", wordText(600))

	store, err := chromemdb.NewVectorDBManager(chromemdb.Config{Collection: "books", InMemory: true})
	require.NoError(t, err)

	svc := NewService(testRegistry(), chunker.NewDefault(), embeddingtest.NewHashEmbedder(32), store, Options{
		Extensions: []string{".txt", ".md"},
	})
	summary, err := svc.Run(ctx, dir)
	require.NoError(t, err)

	// os.ReadDir order: gita.TXT, gita.md, gita.txt
	assert.Equal(t, 3, summary.TotalBooks)
	assert.Equal(t, []string{"gita"}, summary.BooksProcessed)
	assert.Equal(t, 2, summary.TotalChunks)
	require.Len(t, summary.BooksSkipped, 2)
	for _, skipped := range summary.BooksSkipped {
		assert.Equal(t, "gita", skipped.Book)
		assert.Contains(t, skipped.Reason, ErrDuplicateBook.Error())
		assert.Contains(t, skipped.Reason, "gita.TXT")
	}

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, summary.TotalChunks, n)
}

func TestRun_RoundTripThroughChromem(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	text := wordText(600)
	writeFile(t, dir, "book.txt", text)

	store, err := chromemdb.NewVectorDBManager(chromemdb.Config{Collection: "books", InMemory: true})
	require.NoError(t, err)
	emb := embeddingtest.NewHashEmbedder(256)

	svc := NewService(testRegistry(), chunker.NewDefault(), emb, store, Options{Extensions: []string{".txt"}})
	summary, err := svc.Run(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalChunks)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	first := strings.Join(strings.Fields(text)[:500], " ")
	results := rag.NewRAG(emb, store).Search(ctx, first, 5)
	require.Len(t, results, 2)
	assert.Equal(t, models.Metadata{Book: "book", ChunkID: 0, Source: "book.txt"}, results[0].Metadata)
	assert.Equal(t, first, results[0].Content)
	assert.Greater(t, results[0].Score, 0.95)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	// re-ingesting the same book replaces records instead of duplicating them
	_, err = svc.Run(ctx, dir)
	require.NoError(t, err)
	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
