package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"docrag/internal/domain"
	"docrag/internal/usecase"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions interactively",
	Long: `Start an interactive question-answering session over the indexed
documents. Type 'exit' or press Ctrl-D to leave.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
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

	askUC := usecase.NewAskUseCase(emb, generator, idx,
		cfg.Retrieve.TopK, cfg.Retrieve.RelevanceFloor, cfg.Retrieve.MaxContextChars, logger)
	session := usecase.NewSession()

	fmt.Println("Ask questions about your documents. Type 'exit' to leave.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			return nil
		}

		answer, err := askUC.Ask(cmd.Context(), question, nil, session)
		switch {
		case errors.Is(err, domain.ErrIndexEmpty):
			fmt.Println("The index is empty. Run 'docrag ingest' first.")
			continue
		case errors.Is(err, domain.ErrNoRelevantContext):
			fmt.Println("Nothing in the indexed documents looks relevant to that question.")
			continue
		case err != nil:
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Printf("\n%s\n\n", answer.Text)
		for i, cit := range answer.Citations {
			fmt.Printf("  [%d] %s (%s)\n", i+1, cit.DocName, pageLabel(cit.StartPage, cit.EndPage))
		}
		fmt.Println()
	}
}
