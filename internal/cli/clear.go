package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the entire index",
	Long: `Delete every document, chunk, and embedding from the index. This
cannot be undone; pass --yes to confirm.`,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "confirm deletion")
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearYes {
		return fmt.Errorf("refusing to clear the index without --yes")
	}

	idx, err := openIndex(GetRootDir())
	if err != nil {
		return err
	}
	defer idx.Close()

	if err := idx.Clear(); err != nil {
		return err
	}
	fmt.Println("Index cleared.")
	return nil
}
