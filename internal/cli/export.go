package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/caseextract/internal/model"
	"github.com/ppiankov/caseextract/internal/report"
	"github.com/ppiankov/caseextract/internal/store"
)

var (
	exportFormat string
	exportOut    string
	jobsLimit    int
)

var exportCmd = &cobra.Command{
	Use:   "export <job-id|latest>",
	Short: "Export the cases of a stored job",
	Long: `Render every case of a job as an XLSX workbook, a text table or JSON.

Example:
  caseextract export latest
  caseextract export 3f2a... --format text
  caseextract export 3f2a... --out cases.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent jobs",
	Args:  cobra.NoArgs,
	RunE:  runJobs,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "xlsx", "output format (xlsx, text, json)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output path (default <job-id>.xlsx for xlsx, stdout otherwise)")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 20, "number of jobs to show")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	job, err := lookupJob(ctx, a.store, args[0])
	if err != nil {
		return err
	}
	results, err := a.store.ListResults(ctx, job.ID)
	if err != nil {
		return err
	}
	table := report.BuildTable(results, a.fieldKeys())

	out := exportOut
	if out == "" && exportFormat == "xlsx" {
		out = job.ID + ".xlsx"
	}
	if err := writeOutput(cmd.OutOrStdout(), out, exportFormat, table); err != nil {
		return err
	}
	if out != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d cases of job %s to %s\n", len(table.Rows), job.ID, out)
	}
	return nil
}

func runJobs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	jobs, err := a.store.ListJobs(ctx, jobsLimit)
	if err != nil {
		return err
	}
	return writeJobs(cmd.OutOrStdout(), jobs)
}

func writeJobs(w io.Writer, jobs []model.Job) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tCREATED\tERROR")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.Name, j.Status, j.CreatedAt.Format("2006-01-02 15:04"), j.Error)
	}
	return tw.Flush()
}

// lookupJob resolves a job id, accepting "latest"
func lookupJob(ctx context.Context, st store.Store, id string) (*model.Job, error) {
	if id == "latest" {
		return st.LatestJob(ctx)
	}
	return st.GetJob(ctx, id)
}

// writeOutput renders table in format to path, or to w when path is empty
func writeOutput(w io.Writer, path, format string, table *report.Table) (err error) {
	if path != "" {
		var f *os.File
		if f, err = os.Create(path); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer func() {
			if cErr := f.Close(); cErr != nil && err == nil {
				err = cErr
			}
		}()
		w = f
	}

	switch strings.ToLower(format) {
	case "xlsx":
		if path == "" {
			return fmt.Errorf("xlsx output needs --out")
		}
		return report.WriteXLSX(w, table)
	case "text", "table":
		return report.WriteText(w, table)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(table)
	default:
		return fmt.Errorf("unknown format: %s (supported: xlsx, text, json)", format)
	}
}
