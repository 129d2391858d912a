package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/caseextract/internal/model"
	"github.com/ppiankov/caseextract/internal/normalize"
	"github.com/ppiankov/caseextract/internal/report"
)

var normalizeFormat string

var normalizeCmd = &cobra.Command{
	Use:   "normalize [file|-]",
	Short: "Normalize a saved model reply into case records",
	Long: `Normalize reads a raw model reply (prose, code fences and all) from a file or
stdin and prints the normalized cases. Useful for replaying replies without
calling the model again.

Example:
  caseextract normalize reply.txt
  pbpaste | caseextract normalize - --format table`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNormalize,
}

func init() {
	normalizeCmd.Flags().StringVarP(&normalizeFormat, "format", "f", "json", "output format (json, table)")

	rootCmd.AddCommand(normalizeCmd)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open reply: %w", err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}

	n := normalize.New(normalize.OptionsFromConfig(cfg.Normalize))
	return normalizeReply(cmd.OutOrStdout(), cmd.ErrOrStderr(), n, string(raw), normalizeFormat)
}

// normalizeReply writes the normalized form of raw to w; diagnostics go to errW
func normalizeReply(w, errW io.Writer, n *normalize.Normalizer, raw, format string) error {
	out, err := n.Normalize(raw)
	if err != nil {
		if prefix := normalize.RawPrefix(err); prefix != "" {
			fmt.Fprintf(errW, "Reply starts with: %s\n", prefix)
		}
		return err
	}
	fmt.Fprintf(errW, "Shape: %s, cases: %d\n", out.Shape, out.Result.CaseCount())

	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out.Result)
	case "table", "text":
		table := report.BuildTable([]model.Result{{DocumentID: "-", Filename: "reply", Data: *out.Result}}, n.FieldKeys())
		return report.WriteText(w, table)
	default:
		return fmt.Errorf("unknown format: %s (supported: json, table)", format)
	}
}
