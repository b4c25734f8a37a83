// maildigest builds the daily email digest: fetches a mailbox window,
// distills it through rules and a language model, and writes the JSON and
// markdown outputs. `run` performs one build; `serve` keeps the
// operational HTTP endpoints and retention sweeper running.
package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/inboxly/maildigest/pkg/config"
)

// Exit codes: 0 success, 1 error, 2 completed with warnings.
const (
	exitError   = 1
	exitWarning = 2
)

// errWarnings marks a run that finished but found problems worth a
// non-zero exit.
var errWarnings = errors.New("run completed with warnings")

var configDir string

func main() {
	root := &cobra.Command{
		Use:           "maildigest",
		Short:         "Daily corporate email digest builder",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", getEnv("CONFIG_DIR", "./config"),
		"path to the configuration directory")

	root.AddCommand(newRunCmd(), newServeCmd())

	if err := root.Execute(); err != nil {
		if errors.Is(err, errWarnings) {
			os.Exit(exitWarning)
		}
		slog.Error("command failed", "error", err)
		os.Exit(exitError)
	}
}

// loadConfig reads .env and the YAML configuration from the config dir.
func loadConfig() (*config.Config, error) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Debug("no .env file, continuing with existing environment", "path", envPath)
	}
	return config.Initialize(configDir)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
