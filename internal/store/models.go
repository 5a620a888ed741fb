package store

import (
	"encoding/json"
	"time"
)

// Prompt is a reusable prompt template addressed by Slug.
type Prompt struct {
	ID             int64     `json:"id" yaml:"-"`
	Slug           string    `json:"slug" yaml:"slug"`
	Name           string    `json:"name" yaml:"name"`
	SystemTemplate string    `json:"system_template,omitempty" yaml:"system_template,omitempty"`
	UserTemplate   string    `json:"user_template" yaml:"user_template"`
	Provider       string    `json:"provider" yaml:"provider"`
	Model          string    `json:"model" yaml:"model"`
	Temperature    float64   `json:"temperature" yaml:"temperature"`
	MaxTokens      int       `json:"max_tokens" yaml:"max_tokens"`
	CreatedAt      time.Time `json:"created_at" yaml:"-"`
	UpdatedAt      time.Time `json:"updated_at" yaml:"-"`
}

// PromptPatch carries a sparse prompt update. Nil fields are left as they are.
type PromptPatch struct {
	Name           *string  `json:"name,omitempty" binding:"omitempty,min=1,max=256"`
	SystemTemplate *string  `json:"system_template,omitempty"`
	UserTemplate   *string  `json:"user_template,omitempty" binding:"omitempty,min=1"`
	Provider       *string  `json:"provider,omitempty" binding:"omitempty,min=1,max=64"`
	Model          *string  `json:"model,omitempty" binding:"omitempty,min=1,max=128"`
	Temperature    *float64 `json:"temperature,omitempty" binding:"omitempty,gte=0,lte=2"`
	MaxTokens      *int     `json:"max_tokens,omitempty" binding:"omitempty,gte=0,lte=8192"`
}

// Apply merges the present fields of p into dst.
func (p PromptPatch) Apply(dst *Prompt) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.SystemTemplate != nil {
		dst.SystemTemplate = *p.SystemTemplate
	}
	if p.UserTemplate != nil {
		dst.UserTemplate = *p.UserTemplate
	}
	if p.Provider != nil {
		dst.Provider = *p.Provider
	}
	if p.Model != nil {
		dst.Model = *p.Model
	}
	if p.Temperature != nil {
		dst.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		dst.MaxTokens = *p.MaxTokens
	}
}

// Empty reports whether the patch changes nothing.
func (p PromptPatch) Empty() bool {
	return p == PromptPatch{}
}

// Status is the lifecycle state of a request outcome.
type Status string

const (
	StatusPending               Status = "pending"
	StatusDelivered             Status = "delivered"
	StatusDeliveredWithFallback Status = "delivered_with_fallback"
	StatusFailed                Status = "failed"
)

// Prompt slug labels recorded when no stored template applies.
const (
	SlugRaw     = "__raw__"
	SlugMissing = "__missing__"
	SlugInvalid = "__invalid__"
)

// Outcome is the audit record of one request, keyed by RequestID.
type Outcome struct {
	ID              int64          `json:"id"`
	RequestID       string         `json:"request_id"`
	PromptSlug      string         `json:"prompt_slug"`
	UserID          int64          `json:"user_id"`
	ChatID          int64          `json:"chat_id"`
	Params          map[string]any `json:"params"`
	RenderedSystem  *string        `json:"rendered_system"`
	RenderedUser    *string        `json:"rendered_user"`
	LLMOK           bool           `json:"llm_ok"`
	LLMError        *string        `json:"llm_error"`
	LLMResponseText *string        `json:"llm_response_text"`
	TelegramOK      bool           `json:"telegram_ok"`
	TelegramError   *string        `json:"telegram_error"`
	Status          Status         `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func toJSON(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func fromJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
