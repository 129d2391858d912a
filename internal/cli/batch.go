package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ppiankov/caseextract/internal/model"
	"github.com/ppiankov/caseextract/internal/report"
	"github.com/ppiankov/caseextract/internal/worker"
)

var (
	outputDir    string
	batchTimeout time.Duration
)

var batchCmd = &cobra.Command{
	Use:   "batch <list-file>",
	Short: "Process many PDFs listed in a file in parallel",
	Long: `Batch reads PDF paths or URLs from a file (one per line, # for comments) and
processes each as its own job with the default prompt. Every successful
source gets an XLSX workbook in the output directory.

Example:
  caseextract batch sources.txt
  caseextract batch sources.txt --workers 8 --output-dir ./cases`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./caseextract-output", "directory for per-source workbooks")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	a, err := openApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	ctx = a.withLogger(ctx)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "Input file: %s\n", args[0])
	fmt.Fprintf(w, "Workers:    %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(w, "Provider:   %s/%s\n\n", a.provider.Name(), cfg.LLM.Model)

	processor := worker.NewBatchProcessor(a.processor, cfg.Concurrency.Workers)
	results, err := processor.ProcessFile(ctx, afero.NewOsFs(), args[0])
	if err != nil {
		return err
	}

	keys := a.fieldKeys()
	succeeded := 0
	for _, r := range results {
		if r.Error != nil {
			fmt.Fprintf(w, "✗ %s: %v\n", r.Source, r.Error)
			continue
		}
		path := filepath.Join(outputDir, fmt.Sprintf("%03d-%s.xlsx", r.Index+1, sanitizeFilename(r.Source)))
		if err := writeOutput(nil, path, "xlsx", report.BuildTable([]model.Result{*r.Result}, keys)); err != nil {
			fmt.Fprintf(w, "✗ %s: %v\n", r.Source, err)
			continue
		}
		succeeded++
		fmt.Fprintf(w, "✓ %s: %d cases → %s\n", r.Source, r.Result.Data.CaseCount(), path)
	}

	fmt.Fprintf(w, "\nSucceeded: %d, failed: %d\n", succeeded, len(results)-succeeded)
	if succeeded == 0 && len(results) > 0 {
		return fmt.Errorf("no source produced results")
	}
	return nil
}

// sanitizeFilename turns a path or URL into a safe file name without extension
func sanitizeFilename(s string) string {
	s = strings.TrimSuffix(s, "/")
	if i := strings.LastIndexAny(s, `/\`); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, filepath.Ext(s))

	s = strings.Map(func(r rune) rune {
		switch r {
		case ':', '*', '?', '"', '<', '>', '|', '&', '=':
			return '_'
		case ' ':
			return '-'
		}
		return r
	}, s)

	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		s = "document"
	}
	return s
}
