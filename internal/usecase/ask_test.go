package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docrag/internal/adapter/llm"
	"docrag/internal/domain"
)

func TestAskAnswersWithCitations(t *testing.T) {
	idx := newTestIndex(t)
	seedDocument(t, idx, "doc1", "report.txt",
		[]string{"the project launched in march", "budget overruns were minor"},
		[][]float32{{1, 0, 0}, {0, 1, 0}})

	emb := &vecEmbedder{dim: 3, vecs: map[string][]float32{
		"when did the project launch?": {1, 0, 0},
	}}
	mock := llm.NewMockLLM("It launched in March [Source 1].")
	uc := NewAskUseCase(emb, mock, idx, 5, 0.25, 12000, nopLogger())

	answer, err := uc.Ask(context.Background(), "when did the project launch?", nil, nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Text != "It launched in March [Source 1]." {
		t.Fatalf("Text = %q", answer.Text)
	}
	if len(answer.Citations) == 0 {
		t.Fatal("no citations returned")
	}
	if answer.Citations[0].DocName != "report.txt" || answer.Citations[0].ChunkID != "doc1:0" {
		t.Fatalf("unexpected top citation: %+v", answer.Citations[0])
	}
	for i := 1; i < len(answer.Scores); i++ {
		if answer.Scores[i] > answer.Scores[i-1] {
			t.Fatalf("scores not descending: %v", answer.Scores)
		}
	}
}

func TestAskPromptCarriesSourceTags(t *testing.T) {
	idx := newTestIndex(t)
	seedDocument(t, idx, "doc1", "report.txt",
		[]string{"the project launched in march"},
		[][]float32{{1, 0, 0}})

	emb := &vecEmbedder{dim: 3, vecs: map[string][]float32{"launch date?": {1, 0, 0}}}
	mock := llm.NewMockLLM("answer")
	uc := NewAskUseCase(emb, mock, idx, 5, 0.25, 12000, nopLogger())

	if _, err := uc.Ask(context.Background(), "launch date?", nil, nil); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(mock.Prompts) != 1 {
		t.Fatalf("got %d prompts, want 1", len(mock.Prompts))
	}
	prompt := mock.Prompts[0]
	if !strings.Contains(prompt, "[Source 1 - report.txt, Page 1]") {
		t.Fatalf("prompt missing source tag:\n%s", prompt)
	}
	if !strings.Contains(prompt, "the project launched in march") {
		t.Fatalf("prompt missing chunk text:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Question: launch date?") {
		t.Fatalf("prompt missing question:\n%s", prompt)
	}
}

func TestAskEmptyIndex(t *testing.T) {
	idx := newTestIndex(t)
	emb := &vecEmbedder{dim: 3, vecs: map[string][]float32{"anything": {1, 0, 0}}}
	uc := NewAskUseCase(emb, llm.NewMockLLM(), idx, 5, 0.25, 12000, nopLogger())

	_, err := uc.Ask(context.Background(), "anything", nil, nil)
	if !errors.Is(err, domain.ErrIndexEmpty) {
		t.Fatalf("err = %v, want ErrIndexEmpty", err)
	}
}

func TestAskBelowRelevanceFloor(t *testing.T) {
	idx := newTestIndex(t)
	seedDocument(t, idx, "doc1", "report.txt",
		[]string{"the project launched in march"},
		[][]float32{{1, 0, 0}})

	emb := &vecEmbedder{dim: 3, vecs: map[string][]float32{"orthogonal question": {0, 0, 1}}}
	mock := llm.NewMockLLM()
	uc := NewAskUseCase(emb, mock, idx, 5, 0.25, 12000, nopLogger())

	_, err := uc.Ask(context.Background(), "orthogonal question", nil, nil)
	if !errors.Is(err, domain.ErrNoRelevantContext) {
		t.Fatalf("err = %v, want ErrNoRelevantContext", err)
	}
	if len(mock.Prompts) != 0 {
		t.Fatal("generation ran despite no relevant context")
	}
}

func TestAskContextBudgetKeepsBestChunk(t *testing.T) {
	idx := newTestIndex(t)
	best := strings.Repeat("x", 300)
	second := strings.Repeat("y", 300)
	seedDocument(t, idx, "doc1", "report.txt",
		[]string{best, second},
		[][]float32{{1, 0, 0}, {0.9, 0.1, 0}})

	emb := &vecEmbedder{dim: 3, vecs: map[string][]float32{"q": {1, 0, 0}}}
	mock := llm.NewMockLLM("answer")
	// Budget below even the best chunk: it must still be included alone.
	uc := NewAskUseCase(emb, mock, idx, 5, 0.25, 100, nopLogger())

	answer, err := uc.Ask(context.Background(), "q", nil, nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(answer.Citations) != 1 {
		t.Fatalf("got %d citations, want 1", len(answer.Citations))
	}
	if !strings.Contains(mock.Prompts[0], best) {
		t.Fatal("prompt missing the best chunk")
	}
	if strings.Contains(mock.Prompts[0], second) {
		t.Fatal("prompt contains a chunk beyond the budget")
	}
}

func TestAskDocumentFilter(t *testing.T) {
	idx := newTestIndex(t)
	seedDocument(t, idx, "doc1", "a.txt", []string{"alpha text"}, [][]float32{{1, 0, 0}})
	seedDocument(t, idx, "doc2", "b.txt", []string{"beta text"}, [][]float32{{1, 0, 0}})

	emb := &vecEmbedder{dim: 3, vecs: map[string][]float32{"q": {1, 0, 0}}}
	uc := NewAskUseCase(emb, llm.NewMockLLM("answer"), idx, 5, 0.25, 12000, nopLogger())

	answer, err := uc.Ask(context.Background(), "q", []string{"doc2"}, nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	for _, cit := range answer.Citations {
		if cit.DocID != "doc2" {
			t.Fatalf("citation outside filter: %+v", cit)
		}
	}
}

func TestAskRecordsSession(t *testing.T) {
	idx := newTestIndex(t)
	seedDocument(t, idx, "doc1", "report.txt", []string{"some text"}, [][]float32{{1, 0, 0}})

	emb := &vecEmbedder{dim: 3, vecs: map[string][]float32{"q": {1, 0, 0}}}
	uc := NewAskUseCase(emb, llm.NewMockLLM("the answer"), idx, 5, 0.25, 12000, nopLogger())

	session := NewSession()
	if _, err := uc.Ask(context.Background(), "q", nil, session); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	turns := session.Turns()
	if len(turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(turns))
	}
	if turns[0].Question != "q" || turns[0].Answer != "the answer" {
		t.Fatalf("unexpected turn: %+v", turns[0])
	}
	if len(turns[0].Citations) == 0 {
		t.Fatal("turn has no citations")
	}
	if turns[0].AskedAt.IsZero() {
		t.Fatal("turn has no timestamp")
	}
}
