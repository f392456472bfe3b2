// Package embeddingtest provides offline embedders for tests.
package embeddingtest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// HashEmbedder maps each lower-cased word into one of Dim buckets and returns
// the L2-normalized bucket counts. Equal texts always get equal vectors.
type HashEmbedder struct {
	Dim int

	mu    sync.Mutex
	calls [][]string
}

func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{Dim: dim}
}

func (h *HashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	h.calls = append(h.calls, append([]string(nil), texts...))
	h.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return h.vector(text), nil
}

// Batches returns the texts of every EmbedDocuments call, in order.
func (h *HashEmbedder) Batches() [][]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]string(nil), h.calls...)
}

func (h *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, h.Dim)
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		vec[0] = 1
		return vec
	}
	for _, w := range words {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		vec[f.Sum32()%uint32(h.Dim)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// ErrEmbed is returned by FailingEmbedder.
var ErrEmbed = errors.New("embedding backend unavailable")

// FailingEmbedder fails every call.
type FailingEmbedder struct{}

func (FailingEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, ErrEmbed
}

func (FailingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, ErrEmbed
}
