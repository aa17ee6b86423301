package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexEmpty is returned by Search when the index holds zero
	// records. Distinct from a search that matches fewer than k chunks.
	ErrIndexEmpty = errors.New("vector index is empty")

	// ErrIndexCorrupt is returned when persisted index state cannot be
	// read back. The index must be rebuilt; it never silently starts
	// empty over unreadable state.
	ErrIndexCorrupt = errors.New("vector index is corrupt")

	// ErrNoRelevantContext is the user-visible "nothing relevant was
	// found" condition: the index is empty or the best match scored
	// below the relevance floor. It is not a service failure.
	ErrNoRelevantContext = errors.New("no relevant context found")

	// ErrDocumentNotFound is returned when an operation names a
	// document id that is not in the index.
	ErrDocumentNotFound = errors.New("document not found")
)

// ConfigError reports an invalid configuration value. Fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// ExtractionError reports a document that could not be turned into a
// text stream. It is per-document and does not abort other documents.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingRejectedError is a non-retryable rejection from the embedding
// or generation service: malformed input, authentication failure, or a
// permanent refusal. It never consumes retry budget.
type EmbeddingRejectedError struct {
	Err error
}

func (e *EmbeddingRejectedError) Error() string {
	return fmt.Sprintf("embedding rejected: %v", e.Err)
}

func (e *EmbeddingRejectedError) Unwrap() error { return e.Err }

// EmbeddingUnavailableError reports retry exhaustion against the
// embedding or generation service, carrying the last underlying error
// and the number of attempts made.
type EmbeddingUnavailableError struct {
	Attempts int
	Err      error
}

func (e *EmbeddingUnavailableError) Error() string {
	return fmt.Sprintf("embedding unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *EmbeddingUnavailableError) Unwrap() error { return e.Err }

// BatchEmbedError reports a partially failed embedding call. Vectors is
// aligned with the input texts, nil at failed positions; ItemErrors maps
// failed input indexes to their cause. The caller can skip and report
// the bad items instead of aborting the whole document.
type BatchEmbedError struct {
	Vectors    [][]float32
	ItemErrors map[int]error
}

func (e *BatchEmbedError) Error() string {
	return fmt.Sprintf("embedding failed for %d of %d texts", len(e.ItemErrors), len(e.Vectors))
}

// GenerationRejectedError is the generation-side counterpart of
// EmbeddingRejectedError.
type GenerationRejectedError struct {
	Err error
}

func (e *GenerationRejectedError) Error() string {
	return fmt.Sprintf("generation rejected: %v", e.Err)
}

func (e *GenerationRejectedError) Unwrap() error { return e.Err }

// GenerationUnavailableError reports retry exhaustion on a generation
// call.
type GenerationUnavailableError struct {
	Attempts int
	Err      error
}

func (e *GenerationUnavailableError) Error() string {
	return fmt.Sprintf("generation unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *GenerationUnavailableError) Unwrap() error { return e.Err }

// IngestionError wraps whatever caused a document ingestion to fail
// after the partial chunks were rolled back.
type IngestionError struct {
	DocID string
	Err   error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed for document %s: %v", e.DocID, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }
