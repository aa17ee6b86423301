package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"docrag/internal/domain"
	"docrag/internal/usecase"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <doc-id>",
	Short: "Summarize a whole indexed document",
	Long: `Produce a summary of one indexed document. Every chunk of the
document contributes; long documents are summarized in stages.

Use 'docrag list' to find document ids.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
}

func runSummarize(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	idx, err := openIndex(GetRootDir())
	if err != nil {
		return err
	}
	defer idx.Close()

	generator, err := newLLM(cfg)
	if err != nil {
		return err
	}

	sumUC := usecase.NewSummarizeUseCase(generator, idx, cfg.Retrieve.MaxContextChars, logger)

	docID, err := resolveDocID(idx, args[0])
	if err != nil {
		return err
	}

	summary, err := sumUC.Summarize(cmd.Context(), docID)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return fmt.Errorf("no such document: %s (try 'docrag list')", args[0])
	}
	if err != nil {
		return err
	}

	fmt.Println(summary)
	return nil
}
