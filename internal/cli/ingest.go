package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docrag/config"
	"docrag/internal/adapter/chunker"
	"docrag/internal/adapter/extractor"
	"docrag/internal/adapter/fs"
	"docrag/internal/usecase"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Index documents for question answering",
	Long: `Index one or more documents, or every matching document under a
directory. The index is stored in .docrag/index.db within the root
directory.

Examples:
  docrag ingest report.pdf           # Index a single document
  docrag ingest ./papers             # Index a directory of documents
  docrag ingest a.pdf notes.md       # Index several documents`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	paths, err := collectPaths(args, cfg.Ingest.Includes, cfg.Ingest.Excludes)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("No matching documents found.")
		return nil
	}

	idx, err := openIndex(GetRootDir())
	if err != nil {
		return err
	}
	defer idx.Close()

	ck, err := chunker.NewWindowChunker(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return err
	}
	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	ingestUC := usecase.NewIngestUseCase(extractor.NewFileExtractor(), ck, emb, idx, logger)

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	outcomes := ingestUC.IngestAll(cmd.Context(), paths, cfg.Ingest.Concurrency, func(usecase.IngestOutcome) {
		bar.Add(1)
	})

	var indexed, chunks, skippedChunks, failed int
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failed++
			continue
		}
		if outcome.Result.Chunks > 0 {
			indexed++
		}
		chunks += outcome.Result.Chunks
		skippedChunks += outcome.Result.SkippedChunks
	}

	fmt.Printf("\nIngestion complete:\n")
	fmt.Printf("  Documents indexed: %d\n", indexed)
	fmt.Printf("  Chunks created:    %d\n", chunks)
	if skippedChunks > 0 {
		fmt.Printf("  Chunks skipped:    %d\n", skippedChunks)
	}
	if failed > 0 {
		fmt.Printf("\nFailures:\n")
		for _, outcome := range outcomes {
			if outcome.Err != nil {
				fmt.Printf("  - %s: %v\n", outcome.Path, outcome.Err)
			}
		}
	}

	fmt.Printf("\nIndex stored at: %s\n", config.IndexDBPath(GetRootDir()))
	return nil
}

// collectPaths expands directory arguments with the configured
// include/exclude patterns; file arguments pass through as-is.
func collectPaths(args, includes, excludes []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("path does not exist: %w", err)
		}
		if !info.IsDir() {
			paths = append(paths, abs)
			continue
		}
		found, err := fs.NewWalker(includes, excludes).Walk(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", abs, err)
		}
		paths = append(paths, found...)
	}
	return paths, nil
}
