package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"docrag/internal/domain"
	"docrag/internal/usecase"
)

var compareQuestion string

var compareCmd = &cobra.Command{
	Use:   "compare <doc-id> <doc-id> [doc-id...]",
	Short: "Compare documents on a question",
	Long: `Answer a comparison question across two or more documents. Each
document contributes its own most relevant passages, so no document is
drowned out by the others.

Examples:
  docrag compare plan-a.pdf plan-b.pdf -q "how do the rollout plans differ?"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)
	compareCmd.Flags().StringVarP(&compareQuestion, "question", "q", "", "comparison question (required)")
	compareCmd.MarkFlagRequired("question")
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

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

	docIDs := make([]string, len(args))
	for i, arg := range args {
		id, err := resolveDocID(idx, arg)
		if err != nil {
			return err
		}
		docIDs[i] = id
	}

	compareUC := usecase.NewCompareUseCase(emb, generator, idx,
		cfg.Retrieve.PerDocTopK, cfg.Retrieve.RelevanceFloor, logger)

	answer, err := compareUC.Compare(cmd.Context(), compareQuestion, docIDs)
	if errors.Is(err, domain.ErrNoRelevantContext) {
		fmt.Println("None of the documents contain anything relevant to that question.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)
	fmt.Printf("\nSources:\n")
	for i, cit := range answer.Citations {
		fmt.Printf("  %d. %s (%s, score %.2f)\n", i+1, cit.DocName, pageLabel(cit.StartPage, cit.EndPage), cit.Score)
	}
	return nil
}
