package parser

import (
	"archive/zip"
	"context"
	"fmt"
	"html"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

var (
	xmlTagRe      = regexp.MustCompile(`<[^>]+>`)
	slideNumberRe = regexp.MustCompile(`slide(\d+)\.xml$`)
)

// DOCXExtractor reads the body of a Word document.
type DOCXExtractor struct{}

func (DOCXExtractor) Extract(ctx context.Context, filePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open docx %s: %w", filePath, err)
	}
	defer r.Close()

	return wordXMLToText(r.Editable().GetContent()), nil
}

// wordXMLToText keeps paragraph breaks and drops all markup.
func wordXMLToText(content string) string {
	content = strings.ReplaceAll(content, "</w:p>", "\n")
	content = strings.ReplaceAll(content, "<w:tab/>", "\t")
	return html.UnescapeString(xmlTagRe.ReplaceAllString(content, ""))
}

// PPTXExtractor reads slide text in slide order.
type PPTXExtractor struct{}

func (PPTXExtractor) Extract(ctx context.Context, filePath string) (string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open pptx %s: %w", filePath, err)
	}
	defer f.Close()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		if path.Dir(file.Name) != "ppt/slides" {
			continue
		}
		m := slideNumberRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: num, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var sb strings.Builder
	for _, s := range slides {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rc, err := s.file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		sb.WriteString(extractTextFromXML(string(data)))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// extractTextFromXML collects the contents of DrawingML <a:t> runs.
func extractTextFromXML(xmlContent string) string {
	var text strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		endIdx := strings.Index(part, "</a:t>")
		if endIdx >= 0 {
			text.WriteString(html.UnescapeString(part[:endIdx]) + " ")
		}
	}
	return text.String()
}

// XLSXExtractor renders every sheet as tab separated rows.
type XLSXExtractor struct{}

func (XLSXExtractor) Extract(ctx context.Context, filePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open xlsx %s: %w", filePath, err)
	}

	var sb strings.Builder
	for _, sheet := range f.Sheets {
		sb.WriteString(fmt.Sprintf("Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				sb.WriteString(cell.Value + "\t")
			}
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

// WorkbookExtractor handles macro-enabled workbooks and templates.
type WorkbookExtractor struct{}

func (WorkbookExtractor) Extract(ctx context.Context, filePath string) (string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open workbook %s: %w", filePath, err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheetName := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
