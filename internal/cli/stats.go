package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"docrag/config"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	idx, err := openIndex(GetRootDir())
	if err != nil {
		return err
	}
	defer idx.Close()

	stats, err := idx.Stats()
	if err != nil {
		return err
	}

	fmt.Printf("Documents: %d\n", stats.Documents)
	fmt.Printf("Chunks:    %d\n", stats.Chunks)
	fmt.Printf("Index:     %s\n", config.IndexDBPath(GetRootDir()))
	return nil
}
