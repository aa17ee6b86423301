package domain

import "time"

// Page holds the extracted text of a single document page.
type Page struct {
	Number int
	Text   string
}

// Document is an extracted document in the working set. The ID is the
// sha256 of the file content, so re-ingesting identical bytes maps to the
// same document.
type Document struct {
	ID    string
	Name  string
	Pages []Page
}

// Text returns the concatenated page text in page order.
func (d Document) Text() string {
	total := 0
	for _, p := range d.Pages {
		total += len(p.Text)
	}
	buf := make([]byte, 0, total)
	for _, p := range d.Pages {
		buf = append(buf, p.Text...)
	}
	return string(buf)
}

// Chunk is an overlapping segment of a document's text, the unit of
// embedding and retrieval. Consecutive chunks of a document share exactly
// the configured overlap, except for the truncated final chunk.
type Chunk struct {
	ID          string
	DocID       string
	Seq         int
	Text        string
	StartPage   int
	EndPage     int
	StartOffset int
	EndOffset   int
}

// ScoredChunk pairs a chunk with its similarity to a query vector.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// DocumentInfo describes an indexed document without its page text.
type DocumentInfo struct {
	ID         string
	Name       string
	PageCount  int
	ChunkCount int
	Ready      bool
	IngestedAt time.Time
}

// Stats summarizes the index contents.
type Stats struct {
	Documents int
	Chunks    int
}

// Citation points from a generated answer back to the chunk that
// supports it.
type Citation struct {
	ChunkID   string
	DocID     string
	DocName   string
	StartPage int
	EndPage   int
	Score     float64
}

// Turn is one question/answer exchange in a conversation session.
type Turn struct {
	Question  string
	Answer    string
	Citations []Citation
	AskedAt   time.Time
}

// Answer is the result of a question-answering request.
type Answer struct {
	Text      string
	Citations []Citation
	Scores    []float64
}
