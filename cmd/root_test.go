package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kayz/tgbridge/internal/logger"
)

func TestRootRunsServerByDefault(t *testing.T) {
	if rootCmd.Run == nil {
		t.Fatalf("root command should run the server when no subcommand is given")
	}
}

func TestLoadConfigLogFlagOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tgbridge.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	prevPath, prevLevel := configPath, logLevel
	flag := rootCmd.PersistentFlags().Lookup("log")
	defer func() {
		configPath, logLevel = prevPath, prevLevel
		flag.Changed = false
		_ = logger.Init(logger.Config{Level: "info"})
	}()

	configPath = path
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected file level warn, got %q", cfg.Logging.Level)
	}

	if err := rootCmd.PersistentFlags().Set("log", "debug"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	cfg, err = loadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected --log to win, got %q", cfg.Logging.Level)
	}
	if logger.GetLevel() != logger.DebugLevel {
		t.Fatalf("logger level not applied: %v", logger.GetLevel())
	}
}
