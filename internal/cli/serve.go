package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/caseextract/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the job API: upload PDFs, process them and page through or export the
extracted cases.

Example:
  caseextract serve --addr :8080
  CASEEXTRACT_LLM_PROVIDER=openai caseextract serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	srv := server.New(cfg.Server, server.Deps{
		Processor: a.processor,
		Store:     a.store,
		Provider:  a.provider,
		Metrics:   a.metrics,
		Logger:    a.log,
	})
	a.log.Info("provider configured", "provider", a.provider.Name(), "model", cfg.LLM.Model)
	return srv.Run(ctx)
}
