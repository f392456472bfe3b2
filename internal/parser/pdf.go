package parser

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor concatenates the plain text of every page, one page per line.
type PDFExtractor struct{}

func (PDFExtractor) Extract(ctx context.Context, filePath string) (text string, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	// the pdf package panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("failed to read pdf %s: %v", filePath, r)
		}
	}()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", fmt.Errorf("failed to open pdf %s: %w", filePath, err)
	}

	var sb strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d of %s: %w", i, filePath, err)
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
