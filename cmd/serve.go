package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kayz/tgbridge/internal/api"
	"github.com/kayz/tgbridge/internal/cron"
	"github.com/kayz/tgbridge/internal/logger"
	"github.com/kayz/tgbridge/internal/security"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and scheduled submissions",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fatalf("%v", err)
	}
	a, err := newApp(cfg)
	if err != nil {
		fatalf("%v", err)
	}

	if cfg.LLM.APIKey == "" {
		logger.Warn("[Serve] LLM_API_KEY is not set; every request will fail at the LLM stage")
	} else {
		logger.Info("[Serve] LLM %s model=%s key=%s", cfg.LLM.BaseURL, cfg.LLM.DefaultModel, security.MaskSecret(cfg.LLM.APIKey))
	}

	scheduler := cron.NewScheduler(a.service)
	if err := scheduler.Load(cfg.Schedules); err != nil {
		fatalf("%v", err)
	}
	scheduler.Start()

	httpServer := api.NewServer(cfg, a.store, a.service, a.llm, version+" ("+build+")").
		WithSchedules(scheduler).
		HTTPServer()
	go func() {
		logger.Info("[Serve] listening on http://%s", cfg.Server.Addr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatalf("HTTP server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("[Serve] shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownTimeout)
	defer cancel()
	scheduler.Stop(ctx)
	_ = httpServer.Shutdown(ctx)
	if err := a.close(ctx); err != nil {
		logger.Error("[Serve] shutdown: %v", err)
	}
	logger.Sync()
}
