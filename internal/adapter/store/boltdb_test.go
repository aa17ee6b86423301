package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"docrag/internal/domain"
)

func openTestIndex(t *testing.T) (*BoltIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := NewBoltIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx, path
}

func makeChunk(docID string, seq int, text string) domain.Chunk {
	return domain.Chunk{
		ID:        fmt.Sprintf("%s:%d", docID, seq),
		DocID:     docID,
		Seq:       seq,
		Text:      text,
		StartPage: 1,
		EndPage:   1,
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	idx, _ := openTestIndex(t)

	_, err := idx.Search([]float32{1, 0, 0}, 5, nil)
	if !errors.Is(err, domain.ErrIndexEmpty) {
		t.Fatalf("expected ErrIndexEmpty, got %v", err)
	}
}

func TestSearchSingleRecord(t *testing.T) {
	idx, _ := openTestIndex(t)

	if err := idx.Upsert(makeChunk("d1", 0, "hello"), []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}

	results, err := idx.Search([]float32{1, 0, 0}, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Chunk.ID != "d1:0" || results[0].Chunk.Text != "hello" {
		t.Errorf("unexpected result: %+v", results[0])
	}
	if results[0].Score < 0.999 {
		t.Errorf("identical vector should score ~1, got %f", results[0].Score)
	}
}

func TestSearchRankingAndKClamp(t *testing.T) {
	idx, _ := openTestIndex(t)

	vectors := map[string][]float32{
		"d1:0": {1, 0, 0},
		"d1:1": {0.9, 0.1, 0},
		"d1:2": {0, 1, 0},
	}
	for id, v := range vectors {
		var seq int
		fmt.Sscanf(id, "d1:%d", &seq)
		if err := idx.Upsert(makeChunk("d1", seq, "text "+id), v); err != nil {
			t.Fatal(err)
		}
	}

	results, err := idx.Search([]float32{1, 0, 0}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	// k larger than record count returns all records, not an error.
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Chunk.ID != "d1:0" || results[1].Chunk.ID != "d1:1" || results[2].Chunk.ID != "d1:2" {
		t.Errorf("wrong ranking: %s, %s, %s", results[0].Chunk.ID, results[1].Chunk.ID, results[2].Chunk.ID)
	}
	for i := 0; i < len(results)-1; i++ {
		if results[i].Score < results[i+1].Score {
			t.Error("scores should be descending")
		}
	}
}

func TestSearchDeterministicTieBreak(t *testing.T) {
	idx, _ := openTestIndex(t)

	// Identical vectors, so every similarity ties.
	for seq := 4; seq >= 0; seq-- {
		if err := idx.Upsert(makeChunk("d1", seq, "same"), []float32{1, 1, 0}); err != nil {
			t.Fatal(err)
		}
	}

	first, err := idx.Search([]float32{1, 1, 0}, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := idx.Search([]float32{1, 1, 0}, 5, nil)
	if err != nil {
		t.Fatal(err)
	}

	for i := range first {
		if first[i].Chunk.ID != second[i].Chunk.ID {
			t.Fatal("repeated searches disagree on order")
		}
		if first[i].Chunk.Seq != i {
			t.Errorf("ties should resolve by ascending sequence, position %d has seq %d", i, first[i].Chunk.Seq)
		}
	}
}

func TestSearchDocumentFilter(t *testing.T) {
	idx, _ := openTestIndex(t)

	idx.Upsert(makeChunk("d1", 0, "from d1"), []float32{1, 0, 0})
	idx.Upsert(makeChunk("d2", 0, "from d2"), []float32{1, 0, 0})
	idx.Upsert(makeChunk("d3", 0, "from d3"), []float32{1, 0, 0})

	results, err := idx.Search([]float32{1, 0, 0}, 10, []string{"d2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Chunk.DocID != "d2" {
		t.Fatalf("filter should limit to d2, got %+v", results)
	}

	results, err = idx.Search([]float32{1, 0, 0}, 10, []string{"d1", "d3"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 filtered results, got %d", len(results))
	}
	for _, r := range results {
		if r.Chunk.DocID == "d2" {
			t.Error("d2 should be filtered out")
		}
	}
}

func TestUpsertIdempotent(t *testing.T) {
	idx, _ := openTestIndex(t)

	chunk := makeChunk("d1", 0, "hello")
	vec := []float32{0.5, 0.5, 0}

	if err := idx.Upsert(chunk, vec); err != nil {
		t.Fatal(err)
	}
	first, err := idx.Search(vec, 10, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := idx.Upsert(chunk, vec); err != nil {
		t.Fatal(err)
	}
	second, err := idx.Search(vec, 10, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("double upsert changed observable state")
	}
	stats, _ := idx.Stats()
	if stats.Chunks != 1 {
		t.Errorf("expected 1 chunk after double upsert, got %d", stats.Chunks)
	}
}

func TestUpsertDimensionMismatch(t *testing.T) {
	idx, _ := openTestIndex(t)

	if err := idx.Upsert(makeChunk("d1", 0, "a"), []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(makeChunk("d1", 1, "b"), []float32{1, 0}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestDeleteDocument(t *testing.T) {
	idx, _ := openTestIndex(t)

	idx.PutDocument("d1", "one.pdf", 3)
	idx.PutDocument("d2", "two.pdf", 1)
	for seq := 0; seq < 3; seq++ {
		idx.Upsert(makeChunk("d1", seq, "x"), []float32{1, 0, 0})
	}
	idx.Upsert(makeChunk("d2", 0, "y"), []float32{0, 1, 0})
	idx.MarkReady("d1")
	idx.MarkReady("d2")

	if err := idx.DeleteDocument("d1"); err != nil {
		t.Fatal(err)
	}

	results, err := idx.Search([]float32{1, 0, 0}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Chunk.DocID == "d1" {
			t.Error("chunks of deleted document still searchable")
		}
	}

	docs, _ := idx.Documents()
	if len(docs) != 1 || docs[0].ID != "d2" {
		t.Errorf("expected only d2 to remain, got %+v", docs)
	}

	chunks, _ := idx.ChunksByDocument("d1")
	if len(chunks) != 0 {
		t.Errorf("expected no chunks for deleted doc, got %d", len(chunks))
	}
}

func TestSearchExcludesNotReadyDocument(t *testing.T) {
	idx, path := openTestIndex(t)

	idx.PutDocument("done", "done.pdf", 1)
	idx.Upsert(makeChunk("done", 0, "finished"), []float32{0, 1, 0})
	if err := idx.MarkReady("done"); err != nil {
		t.Fatal(err)
	}

	// Registered and upserted, but never marked ready: still mid-ingest.
	idx.PutDocument("partial", "partial.pdf", 2)
	idx.Upsert(makeChunk("partial", 0, "half indexed"), []float32{1, 0, 0})

	results, err := idx.Search([]float32{1, 0, 0}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Chunk.DocID == "partial" {
			t.Fatalf("chunk of not-ready document retrieved: %s", r.Chunk.ID)
		}
	}

	if chunks, _ := idx.ChunksByDocument("partial"); len(chunks) != 0 {
		t.Errorf("ChunksByDocument returned %d chunks of a not-ready document", len(chunks))
	}

	// The not-ready state must survive a reopen.
	idx.Close()
	reopened, err := NewBoltIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	results, err = reopened.Search([]float32{1, 0, 0}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Chunk.DocID == "partial" {
			t.Fatalf("not-ready document became searchable after reopen: %s", r.Chunk.ID)
		}
	}

	if err := reopened.MarkReady("partial"); err != nil {
		t.Fatal(err)
	}
	results, err = reopened.Search([]float32{1, 0, 0}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range results {
		if r.Chunk.DocID == "partial" {
			found = true
		}
	}
	if !found {
		t.Error("document still invisible after MarkReady")
	}
}

func TestChunksByDocumentSequenceOrder(t *testing.T) {
	idx, _ := openTestIndex(t)

	// 12 chunks so lexicographic key order (10 before 2) would betray
	// a sort bug.
	for seq := 11; seq >= 0; seq-- {
		if err := idx.Upsert(makeChunk("d1", seq, fmt.Sprintf("chunk %d", seq)), []float32{1, 0, 0}); err != nil {
			t.Fatal(err)
		}
	}

	chunks, err := idx.ChunksByDocument("d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 12 {
		t.Fatalf("expected 12 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Seq != i {
			t.Fatalf("position %d has seq %d", i, c.Seq)
		}
	}
}

func TestReadyFlag(t *testing.T) {
	idx, _ := openTestIndex(t)

	idx.PutDocument("d1", "one.pdf", 2)
	docs, _ := idx.Documents()
	if docs[0].Ready {
		t.Error("document should not be ready before MarkReady")
	}

	if err := idx.MarkReady("d1"); err != nil {
		t.Fatal(err)
	}
	docs, _ = idx.Documents()
	if !docs[0].Ready {
		t.Error("document should be ready after MarkReady")
	}

	if err := idx.MarkReady("missing"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	idx, err := NewBoltIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	idx.PutDocument("d1", "one.pdf", 1)
	idx.Upsert(makeChunk("d1", 0, "persisted"), []float32{1, 0, 0})
	idx.MarkReady("d1")
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewBoltIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	results, err := reopened.Search([]float32{1, 0, 0}, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Chunk.Text != "persisted" {
		t.Fatalf("state did not survive reopen: %+v", results)
	}
	docs, _ := reopened.Documents()
	if len(docs) != 1 || !docs[0].Ready {
		t.Errorf("document record did not survive reopen: %+v", docs)
	}
}

func TestCorruptFileFailsOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	if err := os.WriteFile(path, []byte("this is not a bolt database and never was"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := NewBoltIndex(path)
	if !errors.Is(err, domain.ErrIndexCorrupt) {
		t.Fatalf("expected ErrIndexCorrupt, got %v", err)
	}
}

func TestClear(t *testing.T) {
	idx, _ := openTestIndex(t)

	idx.PutDocument("d1", "one.pdf", 1)
	idx.Upsert(makeChunk("d1", 0, "x"), []float32{1, 0})

	if err := idx.Clear(); err != nil {
		t.Fatal(err)
	}

	_, err := idx.Search([]float32{1, 0}, 5, nil)
	if !errors.Is(err, domain.ErrIndexEmpty) {
		t.Errorf("expected ErrIndexEmpty after clear, got %v", err)
	}
	stats, _ := idx.Stats()
	if stats.Documents != 0 || stats.Chunks != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}

	// Dimension resets with the data.
	if err := idx.Upsert(makeChunk("d2", 0, "y"), []float32{1, 0, 0}); err != nil {
		t.Errorf("new dimension should be accepted after clear: %v", err)
	}
}

func TestStats(t *testing.T) {
	idx, _ := openTestIndex(t)

	idx.PutDocument("d1", "one.pdf", 2)
	idx.PutDocument("d2", "two.pdf", 1)
	idx.Upsert(makeChunk("d1", 0, "a"), []float32{1, 0})
	idx.Upsert(makeChunk("d1", 1, "b"), []float32{0, 1})
	idx.Upsert(makeChunk("d2", 0, "c"), []float32{1, 1})

	stats, err := idx.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Documents != 2 || stats.Chunks != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	docs, _ := idx.Documents()
	if docs[0].ChunkCount != 2 || docs[1].ChunkCount != 1 {
		t.Errorf("unexpected chunk counts: %+v", docs)
	}
}
