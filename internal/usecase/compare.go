package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"docrag/internal/domain"
	"docrag/internal/port"
)

const compareSystemPrompt = `You are a careful assistant that compares documents using only the provided excerpts.
Point out agreements, differences, and anything one document covers that another does not.
Cite the documents by name. If the excerpts are insufficient for part of the comparison, say so.`

// CompareUseCase answers a comparison question across documents.
// Retrieval runs once per document so every document is represented in
// the context, even when one dominates the similarity ranking.
type CompareUseCase struct {
	embedder port.Embedder
	llm      port.LLM
	index    port.Index
	perDocK  int
	floor    float64
	log      zerolog.Logger
}

func NewCompareUseCase(embedder port.Embedder, llm port.LLM, index port.Index, perDocK int, floor float64, log zerolog.Logger) *CompareUseCase {
	return &CompareUseCase{embedder: embedder, llm: llm, index: index, perDocK: perDocK, floor: floor, log: log}
}

// Compare answers question across the given documents. Each document
// contributes its own best chunks; a document with nothing relevant is
// reported as such in the context rather than silently dropped.
func (u *CompareUseCase) Compare(ctx context.Context, question string, docIDs []string) (*domain.Answer, error) {
	if len(docIDs) < 2 {
		return nil, fmt.Errorf("comparison needs at least two documents, got %d", len(docIDs))
	}

	infos, err := u.index.Documents()
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(infos))
	for _, info := range infos {
		names[info.ID] = info.Name
	}
	for _, id := range docIDs {
		if _, ok := names[id]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
		}
	}

	vectors, err := u.embedder.Embed(ctx, []string{question}, port.InputQuery)
	if err != nil {
		return nil, err
	}
	query := vectors[0]

	var b strings.Builder
	var cits []domain.Citation
	var allScores []float64
	anyRelevant := false

	for _, id := range docIDs {
		scored, err := u.index.Search(query, u.perDocK, []string{id})
		if err != nil {
			return nil, err
		}
		relevant := scored[:0:0]
		for _, sc := range scored {
			if sc.Score >= u.floor {
				relevant = append(relevant, sc)
			}
		}

		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== Document: %s ===", names[id])
		if len(relevant) == 0 {
			b.WriteString("\n(no relevant excerpts found)")
			continue
		}
		anyRelevant = true
		for i, sc := range relevant {
			b.WriteString("\n\n")
			b.WriteString(sourceTag(i+1, names[id], sc.Chunk.StartPage, sc.Chunk.EndPage))
			b.WriteString("\n")
			b.WriteString(sc.Chunk.Text)
		}
		cits = append(cits, citations(relevant, names)...)
		allScores = append(allScores, scores(relevant)...)
	}

	if !anyRelevant {
		return nil, domain.ErrNoRelevantContext
	}

	answer, err := u.llm.GenerateWithSystem(ctx, compareSystemPrompt,
		fmt.Sprintf("Excerpts grouped by document:\n\n%s\n\nComparison question: %s", b.String(), question))
	if err != nil {
		return nil, err
	}

	u.log.Debug().Int("documents", len(docIDs)).Int("cited", len(cits)).Msg("comparison answered")
	return &domain.Answer{Text: answer, Citations: cits, Scores: allScores}, nil
}
