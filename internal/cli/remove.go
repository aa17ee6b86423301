package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <doc-id>",
	Short: "Remove a document from the index",
	Long: `Remove one document and all its chunks and embeddings from the
index. Accepts a document id, a unique id prefix, or a document name.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	idx, err := openIndex(GetRootDir())
	if err != nil {
		return err
	}
	defer idx.Close()

	docID, err := resolveDocID(idx, args[0])
	if err != nil {
		return err
	}
	if err := idx.DeleteDocument(docID); err != nil {
		return err
	}
	fmt.Printf("Removed document %s\n", docID[:12])
	return nil
}
