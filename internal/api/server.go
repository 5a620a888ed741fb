// Package api is the HTTP surface: submit (async and sync), outcome polling,
// prompt management, health and metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kayz/tgbridge/internal/config"
	"github.com/kayz/tgbridge/internal/cron"
	"github.com/kayz/tgbridge/internal/llm"
	"github.com/kayz/tgbridge/internal/pipeline"
	"github.com/kayz/tgbridge/internal/store"
)

type Submitter interface {
	SubmitAsync(ctx context.Context, mode string, body []byte) (*pipeline.Accepted, error)
	SubmitSync(ctx context.Context, body []byte) (*pipeline.Result, error)
	Preview(ctx context.Context, slug string, params map[string]any) (*pipeline.Preview, error)
}

type Store interface {
	Ping() error
	ListPrompts(ctx context.Context) ([]*store.Prompt, error)
	GetPrompt(ctx context.Context, slug string) (*store.Prompt, error)
	CreatePrompt(ctx context.Context, p *store.Prompt) error
	UpdatePrompt(ctx context.Context, slug string, patch store.PromptPatch) (*store.Prompt, error)
	DeletePrompt(ctx context.Context, slug string) error
	GetLatestByRequestID(ctx context.Context, requestID string) (*store.Outcome, error)
}

type Prober interface {
	Probe(ctx context.Context) *llm.ProbeResult
}

// Schedules exposes the cron scheduler to the status and admin routes.
type Schedules interface {
	ListJobs() []*cron.Job
	RunNow(name string) (*cron.Job, error)
}

type Server struct {
	cfg       *config.Config
	store     Store
	service   Submitter
	llm       Prober
	schedules Schedules
	version   string
	startedAt time.Time
}

func NewServer(cfg *config.Config, st Store, svc Submitter, prober Prober, version string) *Server {
	return &Server{
		cfg:       cfg,
		store:     st,
		service:   svc,
		llm:       prober,
		version:   version,
		startedAt: time.Now().UTC(),
	}
}

// WithSchedules attaches the scheduler whose jobs are reported by /status.
func (s *Server) WithSchedules(sc Schedules) *Server {
	s.schedules = sc
	return s
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(s.cfg.Logging), Metrics())

	r.GET("/", s.handleHealth)
	r.HEAD("/", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.handleHealth)
		v1.HEAD("/health", s.handleHealth)
		v1.GET("/status", s.handleStatus)

		v1.POST("/puzzlebot/ai", s.handleSubmitAsync)
		v1.POST("/puzzlebot/ai/sync", s.handleSubmitSync)
		v1.GET("/requests/:id", s.handleGetRequest)

		admin := v1.Group("")
		if s.cfg.Admin.Password != "" {
			admin.Use(gin.BasicAuth(gin.Accounts{s.cfg.Admin.Username: s.cfg.Admin.Password}))
		}
		admin.GET("/prompts", s.handleListPrompts)
		admin.POST("/prompts", s.handleCreatePrompt)
		admin.GET("/prompts/:slug", s.handleGetPrompt)
		admin.PATCH("/prompts/:slug", s.handleUpdatePrompt)
		admin.PUT("/prompts/:slug", s.handleUpdatePrompt)
		admin.DELETE("/prompts/:slug", s.handleDeletePrompt)
		admin.POST("/prompts/:slug/test", s.handleTestPrompt)
		admin.GET("/llm/status", s.handleLLMStatus)
		admin.POST("/schedules/:name/run", s.handleRunSchedule)
	}
	return r
}

// HTTPServer wraps Handler with the configured listen address.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"service":    s.cfg.App.Name,
		"version":    s.version,
		"started_at": s.startedAt.Format(time.RFC3339),
		"uptime_sec": int(time.Since(s.startedAt).Seconds()),
		"schedules":  s.jobs(),
	})
}

func (s *Server) jobs() []*cron.Job {
	if s.schedules == nil {
		return []*cron.Job{}
	}
	return s.schedules.ListJobs()
}

func (s *Server) handleRunSchedule(c *gin.Context) {
	if s.schedules == nil {
		errorJSON(c, http.StatusNotFound, "Schedule not found")
		return
	}
	job, err := s.schedules.RunNow(c.Param("name"))
	if errors.Is(err, cron.ErrJobNotFound) {
		errorJSON(c, http.StatusNotFound, "Schedule not found")
		return
	}
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleLLMStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.llm.Probe(c.Request.Context()))
}

func errorJSON(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
