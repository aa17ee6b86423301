package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"docrag/internal/domain"
	"docrag/internal/port"
)

// IngestUseCase runs the ingestion flow: extract pages, chunk, embed,
// upsert. A document is either fully indexed and marked ready, or
// rolled back; it is never left half-present.
type IngestUseCase struct {
	extractor port.Extractor
	chunker   port.Chunker
	embedder  port.Embedder
	index     port.Index
	log       zerolog.Logger

	mu       sync.Mutex
	docLocks map[string]*sync.Mutex
}

func NewIngestUseCase(
	extractor port.Extractor,
	chunker port.Chunker,
	embedder port.Embedder,
	index port.Index,
	log zerolog.Logger,
) *IngestUseCase {
	return &IngestUseCase{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		log:       log,
		docLocks:  make(map[string]*sync.Mutex),
	}
}

// IngestResult describes one ingested document.
type IngestResult struct {
	DocID         string
	Name          string
	Pages         int
	Chunks        int
	SkippedChunks int
}

// Ingest indexes one document file and returns its id. The document id
// is the sha256 of the file content, so ingesting identical bytes twice
// converges on the same record.
func (u *IngestUseCase) Ingest(ctx context.Context, path string) (*IngestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ExtractionError{Path: path, Err: err}
	}
	sum := sha256.Sum256(data)
	docID := hex.EncodeToString(sum[:])
	name := filepath.Base(path)

	unlock := u.lockDocument(docID)
	defer unlock()

	pages, err := u.extractor.Extract(path)
	if err != nil {
		return nil, err
	}

	doc := domain.Document{ID: docID, Name: name, Pages: pages}
	chunks, err := u.chunker.Chunk(doc)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		// Empty document: a no-op, not a failure.
		u.log.Info().Str("doc", name).Msg("document has no text, nothing indexed")
		return &IngestResult{DocID: docID, Name: name, Pages: len(pages)}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := u.embedder.Embed(ctx, texts, port.InputDocument)
	skipped := 0
	if err != nil {
		var batchErr *domain.BatchEmbedError
		if !errors.As(err, &batchErr) {
			return nil, &domain.IngestionError{DocID: docID, Err: err}
		}
		// Individual chunks were rejected; skip and report them, keep
		// the rest of the document.
		vectors = batchErr.Vectors
		skipped = len(batchErr.ItemErrors)
		for i, itemErr := range batchErr.ItemErrors {
			u.log.Warn().Str("doc", name).Str("chunk", chunks[i].ID).Err(itemErr).Msg("chunk skipped")
		}
		if skipped == len(chunks) {
			return nil, &domain.IngestionError{DocID: docID, Err: fmt.Errorf("all %d chunks rejected", len(chunks))}
		}
	}

	if err := u.index.PutDocument(docID, name, len(pages)); err != nil {
		return nil, &domain.IngestionError{DocID: docID, Err: err}
	}

	for i, chunk := range chunks {
		if vectors[i] == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			u.rollback(docID)
			return nil, &domain.IngestionError{DocID: docID, Err: err}
		}
		if err := u.index.Upsert(chunk, vectors[i]); err != nil {
			u.rollback(docID)
			return nil, &domain.IngestionError{DocID: docID, Err: err}
		}
	}

	if err := u.index.MarkReady(docID); err != nil {
		u.rollback(docID)
		return nil, &domain.IngestionError{DocID: docID, Err: err}
	}

	u.log.Info().Str("doc", name).Int("chunks", len(chunks)-skipped).Int("skipped", skipped).Msg("document indexed")
	return &IngestResult{
		DocID:         docID,
		Name:          name,
		Pages:         len(pages),
		Chunks:        len(chunks) - skipped,
		SkippedChunks: skipped,
	}, nil
}

// IngestOutcome pairs one input path with its result or failure.
type IngestOutcome struct {
	Path   string
	Result *IngestResult
	Err    error
}

// IngestAll ingests several documents under a bounded worker pool. One
// document's failure never aborts the others; each outcome is reported
// separately. The onDone callback, when set, fires as each document
// finishes.
func (u *IngestUseCase) IngestAll(ctx context.Context, paths []string, concurrency int, onDone func(IngestOutcome)) []IngestOutcome {
	if concurrency < 1 {
		concurrency = 1
	}

	outcomes := make([]IngestOutcome, len(paths))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := u.Ingest(ctx, path)
			outcome := IngestOutcome{Path: path, Result: result, Err: err}
			outcomes[i] = outcome
			if onDone != nil {
				mu.Lock()
				onDone(outcome)
				mu.Unlock()
			}
		}(i, path)
	}
	wg.Wait()
	return outcomes
}

// Remove withdraws a document and all its chunks and embeddings.
func (u *IngestUseCase) Remove(docID string) error {
	unlock := u.lockDocument(docID)
	defer unlock()
	return u.index.DeleteDocument(docID)
}

// rollback removes a partially indexed document so no half-ingested
// state outlives a failure.
func (u *IngestUseCase) rollback(docID string) {
	if err := u.index.DeleteDocument(docID); err != nil {
		u.log.Error().Str("doc", docID).Err(err).Msg("rollback failed")
	}
}

// lockDocument serializes writes per document id. Two concurrent ingests
// of the same document must not interleave; ingests of different
// documents may.
func (u *IngestUseCase) lockDocument(docID string) func() {
	u.mu.Lock()
	l, ok := u.docLocks[docID]
	if !ok {
		l = &sync.Mutex{}
		u.docLocks[docID] = l
	}
	u.mu.Unlock()

	l.Lock()
	return l.Unlock
}
