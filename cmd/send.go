package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var sendFile string

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Process one submit payload synchronously and print the outcome",
	Long: `Reads a submit payload (the same JSON the webhook accepts) from a file,
or from stdin with "-f -", runs it to completion and prints the outcome row.`,
	Run: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "-", "Request JSON file, - for stdin")
}

func runSend(cmd *cobra.Command, args []string) {
	body, err := readInput(sendFile)
	if err != nil {
		fatalf("%v", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		fatalf("%v", err)
	}
	a, err := newApp(cfg)
	if err != nil {
		fatalf("%v", err)
	}

	res, err := a.service.SubmitSync(context.Background(), body)
	_ = a.close(context.Background())
	if err != nil {
		fatalf("%v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res.Outcome)
	if stage := res.FailedStage(); stage != "" {
		fatalf("%s stage failed: %s", stage, res.Message())
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" || path == "" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
