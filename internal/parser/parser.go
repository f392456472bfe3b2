package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupportedFormat is returned for extensions without a registered extractor.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Extractor pulls raw text out of one document on disk.
type Extractor interface {
	Extract(ctx context.Context, filePath string) (string, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, filePath string) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, filePath string) (string, error) {
	return f(ctx, filePath)
}

// Registry dispatches extraction by lower-cased file extension.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry returns a registry with every built-in extractor.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	r.Register(".pdf", PDFExtractor{})
	r.Register(".docx", DOCXExtractor{})
	r.Register(".pptx", PPTXExtractor{})
	r.Register(".xlsx", XLSXExtractor{})
	r.Register(".xlsm", WorkbookExtractor{})
	r.Register(".xltx", WorkbookExtractor{})
	r.Register(".md", MarkdownExtractor{})
	r.Register(".markdown", MarkdownExtractor{})
	r.Register(".txt", ExtractorFunc(extractText))
	return r
}

// Register binds an extractor to an extension such as ".pdf".
func (r *Registry) Register(ext string, e Extractor) {
	r.byExt[strings.ToLower(ext)] = e
}

// Supports reports whether ext has a registered extractor.
func (r *Registry) Supports(ext string) bool {
	_, ok := r.byExt[strings.ToLower(ext)]
	return ok
}

// Extensions lists the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract implements Extractor.
func (r *Registry) Extract(ctx context.Context, filePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	e, ok := r.byExt[ext]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	return e.Extract(ctx, filePath)
}

func extractText(ctx context.Context, filePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
