package chunker

import (
	"errors"
	"strings"
	"testing"

	"docrag/internal/domain"
)

func makeDoc(id string, pageTexts ...string) domain.Document {
	doc := domain.Document{ID: id, Name: id + ".txt"}
	for i, text := range pageTexts {
		doc.Pages = append(doc.Pages, domain.Page{Number: i + 1, Text: text})
	}
	return doc
}

// reconstruct joins chunk texts with the overlap removed.
func reconstruct(chunks []domain.Chunk, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		text := []rune(c.Text)
		if i > 0 {
			text = text[overlap:]
		}
		b.WriteString(string(text))
	}
	return b.String()
}

func TestChunkReconstruction(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
		length  int
	}{
		{"exact window", 1000, 200, 1000},
		{"shorter than window", 1000, 200, 137},
		{"spec scenario", 1000, 200, 2400},
		{"truncated tail", 1000, 200, 2650},
		{"small windows", 10, 3, 101},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			text := strings.Repeat("abcdefghij", (c.length+9)/10)[:c.length]
			doc := makeDoc("d1", text)

			ch, err := NewWindowChunker(c.size, c.overlap)
			if err != nil {
				t.Fatal(err)
			}
			chunks, err := ch.Chunk(doc)
			if err != nil {
				t.Fatal(err)
			}
			if len(chunks) == 0 {
				t.Fatal("expected chunks")
			}

			if got := reconstruct(chunks, c.overlap); got != text {
				t.Errorf("reconstruction mismatch: got %d chars, want %d", len(got), len(text))
			}
		})
	}
}

func TestChunkOverlapIsExact(t *testing.T) {
	text := strings.Repeat("x y z w v u t s r q", 200)
	doc := makeDoc("d1", text)

	ch, err := NewWindowChunker(1000, 200)
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := ch.Chunk(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatal("need at least 2 chunks")
	}

	for i := 0; i < len(chunks)-1; i++ {
		tail := chunks[i].Text[len(chunks[i].Text)-200:]
		head := chunks[i+1].Text[:200]
		if tail != head {
			t.Fatalf("chunks %d and %d do not share the configured overlap", i, i+1)
		}
	}
}

func TestChunkScenario2400(t *testing.T) {
	text := strings.Repeat("a", 2400)
	doc := makeDoc("d1", text)

	ch, _ := NewWindowChunker(1000, 200)
	chunks, err := ch.Chunk(doc)
	if err != nil {
		t.Fatal(err)
	}

	// Windows advance by 800: 0, 800, 1600. The window at 2400 would be
	// empty and is never emitted.
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	last := chunks[len(chunks)-1]
	if len(last.Text) != 800 {
		t.Errorf("final chunk should hold the remaining 800 chars, got %d", len(last.Text))
	}
	if got := reconstruct(chunks, 200); got != text {
		t.Error("reconstruction mismatch for 2400-char document")
	}
}

func TestChunkTruncatedFinal(t *testing.T) {
	text := strings.Repeat("b", 2650)
	doc := makeDoc("d1", text)

	ch, _ := NewWindowChunker(1000, 200)
	chunks, err := ch.Chunk(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	if got := len(chunks[3].Text); got != 2650-2400 {
		t.Errorf("expected truncated final chunk of %d chars, got %d", 250, got)
	}
}

func TestChunkEmptyDocument(t *testing.T) {
	ch, _ := NewWindowChunker(1000, 200)

	chunks, err := ch.Chunk(makeDoc("d1"))
	if err != nil {
		t.Fatalf("empty document should not error, got %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected 0 chunks, got %d", len(chunks))
	}

	chunks, err = ch.Chunk(makeDoc("d1", "", ""))
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected 0 chunks for empty pages, got %d", len(chunks))
	}
}

func TestChunkShortDocument(t *testing.T) {
	ch, _ := NewWindowChunker(1000, 200)

	chunks, err := ch.Chunk(makeDoc("d1", "just one short page"))
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected exactly one chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "just one short page" {
		t.Error("chunk text should equal the full document")
	}
	if chunks[0].StartPage != 1 || chunks[0].EndPage != 1 {
		t.Errorf("expected page range 1-1, got %d-%d", chunks[0].StartPage, chunks[0].EndPage)
	}
}

func TestChunkPageRanges(t *testing.T) {
	// Two 600-char pages; window 1000 crosses the boundary.
	page1 := strings.Repeat("p", 600)
	page2 := strings.Repeat("q", 600)
	doc := makeDoc("d1", page1, page2)

	ch, _ := NewWindowChunker(1000, 200)
	chunks, err := ch.Chunk(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	if chunks[0].StartPage != 1 || chunks[0].EndPage != 2 {
		t.Errorf("chunk 0 should span pages 1-2, got %d-%d", chunks[0].StartPage, chunks[0].EndPage)
	}
	if chunks[1].StartPage != 2 || chunks[1].EndPage != 2 {
		t.Errorf("chunk 1 should sit on page 2, got %d-%d", chunks[1].StartPage, chunks[1].EndPage)
	}
}

func TestChunkIDsAreDeterministic(t *testing.T) {
	doc := makeDoc("abc123", strings.Repeat("z", 2000))

	ch, _ := NewWindowChunker(1000, 200)
	chunks, _ := ch.Chunk(doc)

	for i, c := range chunks {
		if c.ID != ChunkID("abc123", i) {
			t.Errorf("chunk %d has ID %s", i, c.ID)
		}
		if c.Seq != i {
			t.Errorf("chunk %d has Seq %d", i, c.Seq)
		}
	}
}

func TestNewWindowChunkerValidation(t *testing.T) {
	cases := []struct {
		size, overlap int
	}{
		{0, 0},
		{-1, 10},
		{100, -5},
		{100, 100},
		{100, 150},
	}
	for _, c := range cases {
		_, err := NewWindowChunker(c.size, c.overlap)
		var cfgErr *domain.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("size=%d overlap=%d: expected ConfigError, got %v", c.size, c.overlap, err)
		}
	}
}

func TestChunkMultibyteText(t *testing.T) {
	text := strings.Repeat("日本語テキスト分割", 50) // 400 runes
	doc := makeDoc("d1", text)

	ch, _ := NewWindowChunker(150, 50)
	chunks, err := ch.Chunk(doc)
	if err != nil {
		t.Fatal(err)
	}
	if got := reconstruct(chunks, 50); got != text {
		t.Error("multibyte reconstruction mismatch")
	}
}
