package port

import "docrag/internal/domain"

// Extractor turns a document file into an ordered sequence of pages.
// Extraction is opaque to the pipeline and is never retried; failures
// surface as *domain.ExtractionError.
type Extractor interface {
	Extract(path string) ([]domain.Page, error)
}
