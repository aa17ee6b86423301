package port

import "docrag/internal/domain"

// Index stores chunk records with their embeddings and answers
// similarity queries. Implementations persist across restarts and fail
// with domain.ErrIndexCorrupt on unreadable state rather than starting
// empty.
type Index interface {
	// PutDocument registers a document before its chunks are upserted.
	// The document stays not-ready until MarkReady.
	PutDocument(id, name string, pageCount int) error

	// MarkReady flips the readiness flag once every chunk of the
	// document has been upserted.
	MarkReady(id string) error

	// Upsert inserts or replaces the record for a chunk identifier
	// together with its embedding. Idempotent.
	Upsert(chunk domain.Chunk, vector []float32) error

	// DeleteDocument removes the document and every chunk and embedding
	// belonging to it.
	DeleteDocument(docID string) error

	// Search returns up to k chunks ranked by descending similarity to
	// the query vector, ties broken by ascending (doc, sequence). When
	// filterDocIDs is non-empty only chunks of those documents are
	// eligible. Returns domain.ErrIndexEmpty when the index holds zero
	// records.
	Search(query []float32, k int, filterDocIDs []string) ([]domain.ScoredChunk, error)

	// ChunksByDocument returns the document's chunks in sequence order.
	ChunksByDocument(docID string) ([]domain.Chunk, error)

	// Documents lists the indexed documents.
	Documents() ([]domain.DocumentInfo, error)

	// Stats reports index-wide counts.
	Stats() (domain.Stats, error)

	// Clear removes everything from the index.
	Clear() error

	Close() error
}
