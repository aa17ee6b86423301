package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"docrag/internal/domain"
	"docrag/internal/port"
)

const summarizeSystemPrompt = `You are a careful assistant that writes faithful summaries.
Summarize only what the text states; do not add outside knowledge or speculation.`

// SummarizeUseCase produces a whole-document summary by map-reduce:
// summarize batches of chunks, then fold the partial summaries until a
// single one remains. Retrieval plays no part; every chunk of the
// document contributes.
type SummarizeUseCase struct {
	llm             port.LLM
	index           port.Index
	maxContextChars int
	log             zerolog.Logger
}

func NewSummarizeUseCase(llm port.LLM, index port.Index, maxContextChars int, log zerolog.Logger) *SummarizeUseCase {
	return &SummarizeUseCase{llm: llm, index: index, maxContextChars: maxContextChars, log: log}
}

// Summarize returns a summary of the given document.
func (u *SummarizeUseCase) Summarize(ctx context.Context, docID string) (string, error) {
	chunks, err := u.index.ChunksByDocument(docID)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, docID)
	}

	name := docID
	infos, err := u.index.Documents()
	if err != nil {
		return "", err
	}
	for _, info := range infos {
		if info.ID == docID {
			name = info.Name
			break
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	round := 0
	for {
		batches := batchByChars(texts, u.maxContextChars)
		// Each reduction round must shrink the partial count, or an
		// over-verbose model against a tiny budget would loop forever.
		if round > 0 && len(batches) >= len(texts) {
			return "", fmt.Errorf("summary reduction stalled at %d partials within a %d character budget", len(batches), u.maxContextChars)
		}
		u.log.Debug().Str("doc", name).Int("round", round).Int("batches", len(batches)).Msg("summarizing")

		partials := make([]string, len(batches))
		for i, batch := range batches {
			summary, err := u.summarizeOne(ctx, name, batch, round > 0)
			if err != nil {
				return "", err
			}
			partials[i] = summary
		}
		if len(partials) == 1 {
			return partials[0], nil
		}
		texts = partials
		round++
	}
}

func (u *SummarizeUseCase) summarizeOne(ctx context.Context, name, text string, reducing bool) (string, error) {
	var prompt string
	if reducing {
		prompt = fmt.Sprintf("The following are partial summaries of the document %q. Combine them into a single coherent summary, keeping all key points:\n\n%s", name, text)
	} else {
		prompt = fmt.Sprintf("Summarize the following excerpt of the document %q. Keep the key points and any important figures or names:\n\n%s", name, text)
	}
	return u.llm.GenerateWithSystem(ctx, summarizeSystemPrompt, prompt)
}

// batchByChars joins consecutive texts into batches that each fit the
// character budget. A single text larger than the budget forms its own
// batch rather than being split, so no content is ever dropped.
func batchByChars(texts []string, budget int) []string {
	var batches []string
	var b strings.Builder
	for _, t := range texts {
		if b.Len() > 0 && b.Len()+len(t)+2 > budget {
			batches = append(batches, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(t)
	}
	if b.Len() > 0 {
		batches = append(batches, b.String())
	}
	return batches
}
