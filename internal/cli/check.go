package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/caseextract/internal/llm"
)

var checkGenerate bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify storage and provider connectivity",
	Long: `Check opens the configured storage (applying migrations) and asks the
configured provider whether it is reachable. With --generate it also sends a
short test prompt.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkGenerate, "generate", false, "send a short test generation")

	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	w := cmd.OutOrStdout()
	a, err := openApp(ctx, cfg, true)
	if err != nil {
		fmt.Fprintf(w, "✗ %v\n", err)
		return err
	}
	defer func() { _ = a.Close() }()
	fmt.Fprintf(w, "✓ storage: %s\n", cfg.Storage.Driver)

	if !a.provider.IsAvailable(ctx) {
		return fmt.Errorf("provider %s is not reachable", a.provider.Name())
	}
	fmt.Fprintf(w, "✓ provider: %s (%s)\n", a.provider.Name(), cfg.LLM.Model)

	if !checkGenerate {
		return nil
	}
	resp, err := a.provider.Generate(ctx, llm.GenerateRequest{Prompt: llm.ConnectionTestPrompt, MaxTokens: 64})
	if err != nil {
		return fmt.Errorf("test generation: %w", err)
	}
	fmt.Fprintf(w, "✓ generation: %q (model %s)\n", resp.Text, resp.Model)
	return nil
}
