package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docrag/config"
	"docrag/internal/domain"
	"docrag/internal/usecase"
)

var askDocs []string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the indexed documents",
	Long: `Answer a question from the indexed documents and cite the sources
the answer is grounded in.

Examples:
  docrag ask "what is the submission deadline?"
  docrag ask --doc <doc-id> "what does chapter 3 cover?"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringSliceVar(&askDocs, "doc", nil, "restrict to document id (repeatable)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	dbPath := config.IndexDBPath(GetRootDir())
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found. Run 'docrag ingest' first")
	}

	idx, err := openIndex(GetRootDir())
	if err != nil {
		return err
	}
	defer idx.Close()

	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	generator, err := newLLM(cfg)
	if err != nil {
		return err
	}

	askUC := usecase.NewAskUseCase(emb, generator, idx,
		cfg.Retrieve.TopK, cfg.Retrieve.RelevanceFloor, cfg.Retrieve.MaxContextChars, logger)

	answer, err := askUC.Ask(cmd.Context(), args[0], askDocs, nil)
	switch {
	case errors.Is(err, domain.ErrIndexEmpty):
		return fmt.Errorf("the index is empty. Run 'docrag ingest' first")
	case errors.Is(err, domain.ErrNoRelevantContext):
		fmt.Println("Nothing in the indexed documents looks relevant to that question.")
		return nil
	case err != nil:
		return err
	}

	fmt.Println(answer.Text)
	fmt.Printf("\nSources:\n")
	for i, cit := range answer.Citations {
		fmt.Printf("  %d. %s (%s, score %.2f)\n", i+1, cit.DocName, pageLabel(cit.StartPage, cit.EndPage), cit.Score)
	}
	return nil
}

func pageLabel(start, end int) string {
	if start == end {
		return fmt.Sprintf("page %d", start)
	}
	return fmt.Sprintf("pages %d-%d", start, end)
}
