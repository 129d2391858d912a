// Package cli implements the caseextract command line.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X ...cli.Version=..."
var Version = "v0.1.0"

var (
	cfgFile string
	envFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "caseextract",
	Short: "caseextract - structured case data from medical case-report PDFs",
	Long: `caseextract sends case-report PDFs to a generative model, normalizes the
reply into per-case records with confidence scores, and renders them as a
paginated table or an XLSX workbook.

Run it as a web service (caseextract serve) or process PDFs directly.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "caseextract %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./.caseextract/config.yaml or $HOME/.caseextract/config.yaml)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	flags.String("provider", "", "generation provider (gemini, openai, anthropic, ollama)")
	flags.String("model", "", "model name")
	flags.Int("workers", 0, "documents processed concurrently")
	flags.String("db", "", "storage DSN (sqlite path or postgres URL)")
	flags.String("db-driver", "", "storage driver (sqlite, postgres)")
	flags.String("data-dir", "", "directory uploaded PDFs are stored in")
	flags.String("log-level", "", "log level (debug, info, warn, error, disabled)")
	flags.Bool("log-json", false, "log as JSON")

	_ = viper.BindPFlag("llm.provider", flags.Lookup("provider"))
	_ = viper.BindPFlag("llm.model", flags.Lookup("model"))
	_ = viper.BindPFlag("concurrency.workers", flags.Lookup("workers"))
	_ = viper.BindPFlag("storage.dsn", flags.Lookup("db"))
	_ = viper.BindPFlag("storage.driver", flags.Lookup("db-driver"))
	_ = viper.BindPFlag("storage.data_dir", flags.Lookup("data-dir"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("logging.json", flags.Lookup("log-json"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig loads the dotenv file, then the config file, then CASEEXTRACT_* variables
func initConfig() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Error loading env file %s: %v\n", envFile, err)
		}
	}

	if err := setupViper(viper.GetViper(), cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		return
	}
	if verbose && viper.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}
