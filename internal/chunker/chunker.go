// Package chunker turns extracted text into overlapping word windows.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize = 500 // words
	DefaultOverlap   = 50  // words
	DefaultMinChars  = 50
)

// ErrInvalidChunkParams is returned when the window would never advance.
var ErrInvalidChunkParams = errors.New("invalid chunk parameters")

// Chunker splits normalized text into windows of chunkSize words, each
// starting chunkSize-overlap words after the previous one.
type Chunker struct {
	chunkSize int
	overlap   int
	minChars  int
}

// New validates the window parameters. Chunks whose trimmed length is not
// greater than minChars characters are dropped.
func New(chunkSize, overlap, minChars int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidChunkParams, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidChunkParams, overlap, chunkSize)
	}
	if minChars < 0 {
		minChars = 0
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap, minChars: minChars}, nil
}

// NewDefault returns a chunker with 500-word windows and 50 words of overlap.
func NewDefault() *Chunker {
	return &Chunker{chunkSize: DefaultChunkSize, overlap: DefaultOverlap, minChars: DefaultMinChars}
}

// Step is the distance in words between consecutive window starts.
func (c *Chunker) Step() int {
	return c.chunkSize - c.overlap
}

// Windows returns every raw window before the length filter. The last window
// is the first one that reaches the final word.
func (c *Chunker) Windows(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := c.Step()
	windows := make([]string, 0, len(words)/step+1)
	for start := 0; ; start += step {
		end := min(start+c.chunkSize, len(words))
		windows = append(windows, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return windows
}

// Split returns the windows that pass the length filter, in source order.
func (c *Chunker) Split(text string) []string {
	var chunks []string
	for _, w := range c.Windows(text) {
		if utf8.RuneCountInString(strings.TrimSpace(w)) > c.minChars {
			chunks = append(chunks, w)
		}
	}
	return chunks
}
