// Package extractor turns document files into page-aligned text. Only a
// linear text stream with page boundaries is produced; layout, images
// and scanned pages are out of scope.
package extractor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"docrag/internal/domain"
)

// FileExtractor dispatches on file extension. PDFs are read page by
// page; plain-text formats become a single page.
type FileExtractor struct{}

func NewFileExtractor() *FileExtractor {
	return &FileExtractor{}
}

func (e *FileExtractor) Extract(path string) ([]domain.Page, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return extractPDF(path)
	case ".txt", ".md":
		return extractText(path)
	default:
		return nil, &domain.ExtractionError{Path: path, Err: fmt.Errorf("unsupported file format: %s", ext)}
	}
}

func extractPDF(path string) ([]domain.Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.ExtractionError{Path: path, Err: err}
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, &domain.ExtractionError{Path: path, Err: err}
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		// Encrypted or malformed input. Not retried.
		return nil, &domain.ExtractionError{Path: path, Err: err}
	}

	var pages []domain.Page
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, &domain.ExtractionError{Path: path, Err: fmt.Errorf("page %d: %w", i, err)}
		}
		pages = append(pages, domain.Page{Number: i, Text: text})
	}
	return pages, nil
}

func extractText(path string) ([]domain.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ExtractionError{Path: path, Err: err}
	}
	return []domain.Page{{Number: 1, Text: string(data)}}, nil
}
