package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"docrag/internal/domain"
	"docrag/internal/port"
)

const askSystemPrompt = `You are a careful assistant that answers questions using only the provided source excerpts.
Ground every statement in the excerpts and cite the sources you used by number, like [Source 1].
If the excerpts do not contain the answer, say that you cannot answer from the indexed documents.`

// AskUseCase answers a question from the indexed documents: retrieve
// the most similar chunks, build a cited context, and generate a
// grounded answer.
type AskUseCase struct {
	embedder        port.Embedder
	llm             port.LLM
	index           port.Index
	topK            int
	relevanceFloor  float64
	maxContextChars int
	log             zerolog.Logger
}

func NewAskUseCase(
	embedder port.Embedder,
	llm port.LLM,
	index port.Index,
	topK int,
	relevanceFloor float64,
	maxContextChars int,
	log zerolog.Logger,
) *AskUseCase {
	return &AskUseCase{
		embedder:        embedder,
		llm:             llm,
		index:           index,
		topK:            topK,
		relevanceFloor:  relevanceFloor,
		maxContextChars: maxContextChars,
		log:             log,
	}
}

// Ask answers question from the index, optionally restricted to the
// given document ids. The session, when non-nil, records the exchange.
func (u *AskUseCase) Ask(ctx context.Context, question string, filterDocIDs []string, session *Session) (*domain.Answer, error) {
	vectors, err := u.embedder.Embed(ctx, []string{question}, port.InputQuery)
	if err != nil {
		return nil, err
	}

	scored, err := u.index.Search(vectors[0], u.topK, filterDocIDs)
	if err != nil {
		return nil, err
	}

	relevant := scored[:0:0]
	for _, sc := range scored {
		if sc.Score >= u.relevanceFloor {
			relevant = append(relevant, sc)
		}
	}
	if len(relevant) == 0 {
		return nil, domain.ErrNoRelevantContext
	}

	names, err := u.documentNames()
	if err != nil {
		return nil, err
	}

	included := truncateToBudget(relevant, u.maxContextChars)
	contextText := buildContext(included, names)

	answer, err := u.llm.GenerateWithSystem(ctx, askSystemPrompt,
		fmt.Sprintf("Source excerpts:\n\n%s\n\nQuestion: %s", contextText, question))
	if err != nil {
		return nil, err
	}

	result := &domain.Answer{
		Text:      answer,
		Citations: citations(included, names),
		Scores:    scores(included),
	}
	if session != nil {
		session.Append(domain.Turn{
			Question:  question,
			Answer:    answer,
			Citations: result.Citations,
			AskedAt:   time.Now(),
		})
	}
	u.log.Debug().Int("retrieved", len(scored)).Int("used", len(included)).Msg("question answered")
	return result, nil
}

func (u *AskUseCase) documentNames() (map[string]string, error) {
	infos, err := u.index.Documents()
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(infos))
	for _, info := range infos {
		names[info.ID] = info.Name
	}
	return names, nil
}

// truncateToBudget keeps chunks, in descending relevance order, while
// their combined text fits the character budget. The best chunk is
// always kept even when it alone exceeds the budget, so a valid
// retrieval can never produce an empty context.
func truncateToBudget(scored []domain.ScoredChunk, budget int) []domain.ScoredChunk {
	if len(scored) == 0 {
		return scored
	}
	included := scored[:1]
	total := len(scored[0].Chunk.Text)
	for _, sc := range scored[1:] {
		if total+len(sc.Chunk.Text) > budget {
			break
		}
		included = scored[:len(included)+1]
		total += len(sc.Chunk.Text)
	}
	return included
}

func buildContext(scored []domain.ScoredChunk, names map[string]string) string {
	var b strings.Builder
	for i, sc := range scored {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(sourceTag(i+1, names[sc.Chunk.DocID], sc.Chunk.StartPage, sc.Chunk.EndPage))
		b.WriteString("\n")
		b.WriteString(sc.Chunk.Text)
	}
	return b.String()
}

func sourceTag(n int, name string, startPage, endPage int) string {
	if startPage == endPage {
		return fmt.Sprintf("[Source %d - %s, Page %d]", n, name, startPage)
	}
	return fmt.Sprintf("[Source %d - %s, Pages %d-%d]", n, name, startPage, endPage)
}

func citations(scored []domain.ScoredChunk, names map[string]string) []domain.Citation {
	cits := make([]domain.Citation, len(scored))
	for i, sc := range scored {
		cits[i] = domain.Citation{
			ChunkID:   sc.Chunk.ID,
			DocID:     sc.Chunk.DocID,
			DocName:   names[sc.Chunk.DocID],
			StartPage: sc.Chunk.StartPage,
			EndPage:   sc.Chunk.EndPage,
			Score:     sc.Score,
		}
	}
	return cits
}

func scores(scored []domain.ScoredChunk) []float64 {
	out := make([]float64, len(scored))
	for i, sc := range scored {
		out[i] = sc.Score
	}
	return out
}
