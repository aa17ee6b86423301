package chunker

import (
	"fmt"
	"sort"

	"docrag/internal/domain"
)

// WindowChunker slides a fixed-size character window over the
// concatenated page text with a step of size-overlap. Consecutive chunks
// share exactly the overlap; the final chunk is truncated to the
// remaining text and empty trailing windows are dropped. Offsets and
// sizes are counted in runes so multi-byte text chunks cleanly.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, &domain.ConfigError{Field: "chunking.size", Reason: "must be positive"}
	}
	if overlap < 0 {
		return nil, &domain.ConfigError{Field: "chunking.overlap", Reason: "must not be negative"}
	}
	if overlap >= size {
		return nil, &domain.ConfigError{Field: "chunking.overlap", Reason: "must be smaller than chunking.size"}
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

func (c *WindowChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	runes := []rune(doc.Text())
	if len(runes) == 0 {
		// Empty document: nothing to ingest, not an error.
		return nil, nil
	}

	bounds := pageBounds(doc.Pages)
	step := c.size - c.overlap

	var chunks []domain.Chunk
	for start, seq := 0, 0; start < len(runes); start, seq = start+step, seq+1 {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}

		startPage, endPage := bounds.pageRange(start, end)
		chunks = append(chunks, domain.Chunk{
			ID:          ChunkID(doc.ID, seq),
			DocID:       doc.ID,
			Seq:         seq,
			Text:        string(runes[start:end]),
			StartPage:   startPage,
			EndPage:     endPage,
			StartOffset: start,
			EndOffset:   end,
		})

		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}

// ChunkID builds the deterministic chunk identifier: document id plus
// sequence index.
func ChunkID(docID string, seq int) string {
	return fmt.Sprintf("%s:%d", docID, seq)
}

// pageTable maps rune offsets in the concatenated text back to page
// numbers.
type pageTable struct {
	starts  []int // rune offset where each page begins
	numbers []int
}

func pageBounds(pages []domain.Page) pageTable {
	t := pageTable{
		starts:  make([]int, 0, len(pages)),
		numbers: make([]int, 0, len(pages)),
	}
	offset := 0
	for _, p := range pages {
		t.starts = append(t.starts, offset)
		t.numbers = append(t.numbers, p.Number)
		offset += len([]rune(p.Text))
	}
	return t
}

// pageRange reports the pages covered by the rune span [start, end). A
// chunk that crosses a page boundary reports both pages.
func (t pageTable) pageRange(start, end int) (int, int) {
	if len(t.starts) == 0 {
		return 0, 0
	}
	return t.pageAt(start), t.pageAt(end - 1)
}

func (t pageTable) pageAt(offset int) int {
	// First page starting after the offset; the one before contains it.
	i := sort.Search(len(t.starts), func(i int) bool { return t.starts[i] > offset })
	if i == 0 {
		return t.numbers[0]
	}
	return t.numbers[i-1]
}
