package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/caseextract/internal/model"
	"github.com/ppiankov/caseextract/internal/pipeline"
	"github.com/ppiankov/caseextract/internal/report"
)

var (
	processName       string
	processPrompt     string
	processPromptFile string
	processFormat     string
	processOut        string
	processTimeout    time.Duration
)

var processCmd = &cobra.Command{
	Use:   "process <pdf|url>...",
	Short: "Extract cases from PDFs as one job",
	Long: `Process stores the given PDFs (local paths or http(s) URLs) as one job,
sends each to the configured model, normalizes the replies and prints
the resulting case table.

Example:
  caseextract process report.pdf
  caseextract process a.pdf b.pdf --out cases.xlsx --format xlsx
  caseextract process https://example.org/case.pdf --provider openai --model gpt-4o`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processName, "name", "", "job name (default: first file name)")
	processCmd.Flags().StringVar(&processPrompt, "prompt", "", "extraction prompt (default: built-in case-report prompt)")
	processCmd.Flags().StringVar(&processPromptFile, "prompt-file", "", "read the extraction prompt from a file")
	processCmd.Flags().StringVarP(&processFormat, "format", "f", "text", "output format (text, json, xlsx)")
	processCmd.Flags().StringVarP(&processOut, "out", "o", "", "output path (default stdout)")
	processCmd.Flags().DurationVar(&processTimeout, "timeout", 10*time.Minute, "overall processing timeout")

	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prompt, err := resolvePrompt(processPrompt, processPromptFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), processTimeout)
	defer cancel()

	a, err := openApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	ctx = a.withLogger(ctx)

	uploads := make([]pipeline.Upload, 0, len(args))
	for _, source := range args {
		u, err := a.processor.LoadSource(ctx, source)
		if err != nil {
			return err
		}
		uploads = append(uploads, u)
	}

	job, _, err := a.processor.CreateJob(ctx, processName, prompt, uploads)
	if err != nil {
		return err
	}
	summary, err := a.processor.ProcessJob(ctx, job.ID)
	if err != nil {
		return err
	}
	printSummary(cmd, summary)
	if summary.Job.Status == model.JobFailed {
		return fmt.Errorf("job %s failed: %s", job.ID, summary.Job.Error)
	}

	results, err := a.store.ListResults(ctx, job.ID)
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), processOut, processFormat, report.BuildTable(results, a.fieldKeys()))
}

// resolvePrompt prefers an explicit prompt over a prompt file; empty means the default prompt
func resolvePrompt(prompt, file string) (string, error) {
	if prompt != "" || file == "" {
		return prompt, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	return string(data), nil
}

func printSummary(cmd *cobra.Command, s *pipeline.JobSummary) {
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "Job %s (%s): %s\n", s.Job.ID, s.Job.Name, s.Job.Status)
	fmt.Fprintf(w, "  Documents: %d processed, %d with results\n", s.DocumentsProcessed, s.SuccessfulResults)
	fmt.Fprintf(w, "  Cases:     %d\n", s.CasesExtracted)
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  ✗ %s: %s\n", e.Filename, e.Error)
	}
	if s.ContinuationPending {
		fmt.Fprintf(w, "  The model reported further cases; rerun with a prompt asking for the next cases.\n")
	}
}
