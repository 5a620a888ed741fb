package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kayz/tgbridge/internal/pipeline"
	"github.com/kayz/tgbridge/internal/render"
	"github.com/kayz/tgbridge/internal/store"
)

const (
	defaultPromptProvider  = "openai"
	defaultPromptMaxTokens = 512
)

type createPromptRequest struct {
	Slug           string   `json:"slug" binding:"required,min=1,max=128"`
	Name           string   `json:"name" binding:"required,min=1,max=256"`
	SystemTemplate string   `json:"system_template"`
	UserTemplate   string   `json:"user_template" binding:"required"`
	Provider       string   `json:"provider" binding:"omitempty,max=64"`
	Model          string   `json:"model" binding:"omitempty,max=128"`
	Temperature    *float64 `json:"temperature" binding:"omitempty,gte=0,lte=2"`
	MaxTokens      *int     `json:"max_tokens" binding:"omitempty,gte=0,lte=8192"`
}

func (r createPromptRequest) prompt(defaultModel string, defaultTemperature float64) *store.Prompt {
	p := &store.Prompt{
		Slug:           r.Slug,
		Name:           r.Name,
		SystemTemplate: r.SystemTemplate,
		UserTemplate:   r.UserTemplate,
		Provider:       r.Provider,
		Model:          r.Model,
		Temperature:    defaultTemperature,
		MaxTokens:      defaultPromptMaxTokens,
	}
	if p.Provider == "" {
		p.Provider = defaultPromptProvider
	}
	if p.Model == "" {
		p.Model = defaultModel
	}
	if r.Temperature != nil {
		p.Temperature = *r.Temperature
	}
	if r.MaxTokens != nil {
		p.MaxTokens = *r.MaxTokens
	}
	return p
}

func (s *Server) handleListPrompts(c *gin.Context) {
	prompts, err := s.store.ListPrompts(c.Request.Context())
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if prompts == nil {
		prompts = []*store.Prompt{}
	}
	c.JSON(http.StatusOK, prompts)
}

func (s *Server) handleCreatePrompt(c *gin.Context) {
	var req createPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	p := req.prompt(s.cfg.LLM.DefaultModel, s.cfg.LLM.DefaultTemperature)
	if err := s.store.CreatePrompt(c.Request.Context(), p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			errorJSON(c, http.StatusConflict, "Prompt slug must be unique")
			return
		}
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) handleGetPrompt(c *gin.Context) {
	p, err := s.store.GetPrompt(c.Request.Context(), c.Param("slug"))
	if !s.promptFound(c, err) {
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleUpdatePrompt(c *gin.Context) {
	var patch store.PromptPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		errorJSON(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	p, err := s.store.UpdatePrompt(c.Request.Context(), c.Param("slug"), patch)
	if !s.promptFound(c, err) {
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleDeletePrompt(c *gin.Context) {
	err := s.store.DeletePrompt(c.Request.Context(), c.Param("slug"))
	if !s.promptFound(c, err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type testPromptRequest struct {
	Params map[string]any `json:"params"`
}

func (s *Server) handleTestPrompt(c *gin.Context) {
	var req testPromptRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}
	out, err := s.service.Preview(c.Request.Context(), c.Param("slug"), req.Params)
	if err != nil {
		var rerr *render.Error
		var nf *pipeline.PromptNotFoundError
		switch {
		case errors.As(err, &nf):
			errorJSON(c, http.StatusNotFound, "Prompt not found")
		case errors.As(err, &rerr):
			errorJSON(c, http.StatusUnprocessableEntity, err.Error())
		default:
			errorJSON(c, http.StatusInternalServerError, err.Error())
		}
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) promptFound(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrNotFound):
		errorJSON(c, http.StatusNotFound, "Prompt not found")
	default:
		errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return false
}
