package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	idx, err := openIndex(GetRootDir())
	if err != nil {
		return err
	}
	defer idx.Close()

	docs, err := idx.Documents()
	if err != nil {
		return err
	}

	if listJSON {
		output, err := json.MarshalIndent(docs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	if len(docs) == 0 {
		fmt.Println("No documents indexed. Run 'docrag ingest' first.")
		return nil
	}

	for _, doc := range docs {
		status := ""
		if !doc.Ready {
			status = "  (incomplete)"
		}
		fmt.Printf("%-12s  %-40s  %3d pages  %4d chunks%s\n",
			doc.ID[:12], doc.Name, doc.PageCount, doc.ChunkCount, status)
	}
	return nil
}
