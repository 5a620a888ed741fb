package cmd

import (
	"context"
	"fmt"

	"github.com/kayz/tgbridge/internal/config"
	"github.com/kayz/tgbridge/internal/document"
	"github.com/kayz/tgbridge/internal/httpx"
	"github.com/kayz/tgbridge/internal/llm"
	"github.com/kayz/tgbridge/internal/pipeline"
	"github.com/kayz/tgbridge/internal/render"
	"github.com/kayz/tgbridge/internal/store"
	"github.com/kayz/tgbridge/internal/telegram"
)

// app holds the long-lived components shared by the commands.
type app struct {
	cfg     *config.Config
	store   *store.Store
	llm     *llm.Client
	service *pipeline.Service
}

func newApp(cfg *config.Config) (*app, error) {
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	httpClient := httpx.NewClient(cfg.HTTP)
	llmClient := llm.New(cfg.LLM, httpClient)

	deps := pipeline.Deps{
		Prompts:   st,
		Outcomes:  st,
		Templates: render.New(),
		LLM:       llmClient,
		Messenger: telegram.New(cfg.Telegram, httpClient),
	}
	docs, err := document.New(cfg.Document)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	deps.Documents = docs

	p := pipeline.New(cfg, deps)
	return &app{
		cfg:     cfg,
		store:   st,
		llm:     llmClient,
		service: pipeline.NewService(p, pipeline.NewDispatcher(cfg.Pipeline.Workers)),
	}, nil
}

// close drains background work and closes the database.
func (a *app) close(ctx context.Context) error {
	err := a.service.Close(ctx)
	if cerr := a.store.Close(); err == nil {
		err = cerr
	}
	return err
}
