package cmd

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kayz/tgbridge/internal/httpx"
	"github.com/kayz/tgbridge/internal/llm"
)

var llmStatusCmd = &cobra.Command{
	Use:   "llm-status",
	Short: "Probe the configured LLM endpoint's model list",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		res := llm.New(cfg.LLM, httpx.NewClient(cfg.HTTP)).Probe(ctx)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
		if !res.OK {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(llmStatusCmd)
}
