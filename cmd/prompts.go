package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kayz/tgbridge/internal/config"
	"github.com/kayz/tgbridge/internal/store"
)

var promptsFile string

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage stored prompt templates",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompts",
	Run: func(cmd *cobra.Command, args []string) {
		withStore(func(ctx context.Context, st *store.Store, _ *config.Config) error {
			prompts, err := st.ListPrompts(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SLUG\tNAME\tMODEL\tTEMP\tMAX_TOKENS\tUPDATED")
			for _, p := range prompts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d\t%s\n", p.Slug, p.Name, p.Model, p.Temperature, p.MaxTokens,
					p.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		})
	},
}

var promptsGetCmd = &cobra.Command{
	Use:   "get <slug>",
	Short: "Print a prompt as YAML",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withStore(func(ctx context.Context, st *store.Store, _ *config.Config) error {
			p, err := st.GetPrompt(ctx, args[0])
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			return enc.Encode(p)
		})
	},
}

var promptsApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create or replace prompts from a YAML file",
	Long: `The file holds either one prompt or a list under "prompts:".

  prompts:
    - slug: daily
      name: Daily forecast
      user_template: "Forecast for {{.sign}}"
      model: gpt-4o-mini
      temperature: 0.7
      max_tokens: 800`,
	Run: func(cmd *cobra.Command, args []string) {
		data, err := readInput(promptsFile)
		if err != nil {
			fatalf("%v", err)
		}
		withStore(func(ctx context.Context, st *store.Store, cfg *config.Config) error {
			prompts, err := parsePromptFile(data, cfg.LLM.DefaultModel)
			if err != nil {
				return err
			}
			for _, p := range prompts {
				if err := st.SavePrompt(ctx, p); err != nil {
					return fmt.Errorf("save %s: %w", p.Slug, err)
				}
				fmt.Printf("applied %s\n", p.Slug)
			}
			return nil
		})
	},
}

var promptsDeleteCmd = &cobra.Command{
	Use:   "delete <slug>",
	Short: "Delete a prompt",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withStore(func(ctx context.Context, st *store.Store, _ *config.Config) error {
			if err := st.DeletePrompt(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		})
	},
}

func init() {
	promptsApplyCmd.Flags().StringVarP(&promptsFile, "file", "f", "-", "YAML file, - for stdin")
	promptsCmd.AddCommand(promptsListCmd, promptsGetCmd, promptsApplyCmd, promptsDeleteCmd)
	rootCmd.AddCommand(promptsCmd)
}

func withStore(fn func(ctx context.Context, st *store.Store, cfg *config.Config) error) {
	cfg, err := loadConfig()
	if err != nil {
		fatalf("%v", err)
	}
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		fatalf("open database: %v", err)
	}
	err = fn(context.Background(), st, cfg)
	_ = st.Close()
	if errors.Is(err, store.ErrNotFound) {
		fatalf("prompt not found")
	}
	if err != nil {
		fatalf("%v", err)
	}
}

type promptFile struct {
	Prompts []*store.Prompt `yaml:"prompts"`
}

// parsePromptFile accepts a single prompt document or a "prompts:" list.
func parsePromptFile(data []byte, defaultModel string) ([]*store.Prompt, error) {
	var file promptFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	prompts := file.Prompts
	if len(prompts) == 0 {
		var single store.Prompt
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&single); err != nil {
			return nil, fmt.Errorf("parse prompt: %w", err)
		}
		prompts = []*store.Prompt{&single}
	}

	seen := make(map[string]bool, len(prompts))
	for i, p := range prompts {
		switch {
		case p.Slug == "":
			return nil, fmt.Errorf("prompt #%d: slug is required", i+1)
		case p.UserTemplate == "":
			return nil, fmt.Errorf("prompt %s: user_template is required", p.Slug)
		case p.Temperature < 0 || p.Temperature > 2:
			return nil, fmt.Errorf("prompt %s: temperature must be within 0..2", p.Slug)
		case p.MaxTokens < 0 || p.MaxTokens > 8192:
			return nil, fmt.Errorf("prompt %s: max_tokens must be within 0..8192", p.Slug)
		case seen[p.Slug]:
			return nil, fmt.Errorf("prompt %s: duplicate slug", p.Slug)
		}
		seen[p.Slug] = true
		if p.Name == "" {
			p.Name = p.Slug
		}
		if p.Provider == "" {
			p.Provider = "openai"
		}
		if p.Model == "" {
			p.Model = defaultModel
		}
	}
	return prompts, nil
}
