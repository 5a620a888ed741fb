package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kayz/tgbridge/internal/config"
	"github.com/kayz/tgbridge/internal/logger"
)

var (
	logLevel   string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "tgbridge",
	Short: "LLM to Telegram webhook bridge",
	Long: `tgbridge accepts webhook submissions, asks an OpenAI-compatible model
and delivers the answer to a Telegram chat.

Modes:
  tgbridge              Run the HTTP server (default)
  tgbridge serve        Run the HTTP server and scheduled submissions
  tgbridge send         Process one request synchronously
  tgbridge prompts      Manage stored prompts
  tgbridge llm-status   Probe the configured LLM endpoint`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logger.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
		return nil
	},
}

func init() {
	rootCmd.Run = runServe
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info",
		"Log level: trace, debug, info, warn, error, fatal, panic")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath,
		"Path to the YAML config file")
}

// loadConfig reads the config and applies it to the logger. An explicit
// --log flag wins over logging.level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if rootCmd.PersistentFlags().Changed("log") {
		cfg.Logging.Level = logLevel
	}
	err = logger.Init(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	logger.Sync()
	os.Exit(1)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
