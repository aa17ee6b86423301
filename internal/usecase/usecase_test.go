package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"docrag/internal/adapter/store"
	"docrag/internal/domain"
	"docrag/internal/port"
)

func newTestIndex(t *testing.T) *store.BoltIndex {
	t.Helper()
	idx, err := store.NewBoltIndex(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("NewBoltIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

// seedDocument registers a ready document whose chunks carry the given
// texts and vectors.
func seedDocument(t *testing.T, idx port.Index, docID, name string, texts []string, vectors [][]float32) {
	t.Helper()
	if err := idx.PutDocument(docID, name, 1); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	for i, text := range texts {
		chunk := domain.Chunk{
			ID:        fmt.Sprintf("%s:%d", docID, i),
			DocID:     docID,
			Seq:       i,
			Text:      text,
			StartPage: 1,
			EndPage:   1,
		}
		if err := idx.Upsert(chunk, vectors[i]); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	if err := idx.MarkReady(docID); err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
}

// vecEmbedder maps exact texts to fixed vectors, so tests control
// similarity scores precisely.
type vecEmbedder struct {
	vecs map[string][]float32
	dim  int
}

func (e *vecEmbedder) Embed(ctx context.Context, texts []string, kind port.Input) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := e.vecs[text]
		if !ok {
			return nil, fmt.Errorf("no vector registered for %q", text)
		}
		out[i] = v
	}
	return out, nil
}

func (e *vecEmbedder) Dimension() int    { return e.dim }
func (e *vecEmbedder) ModelName() string { return "test" }

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}
