package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kayz/tgbridge/internal/llm"
	"github.com/kayz/tgbridge/internal/metrics"
)

// Service exposes the pipeline in its two modes. Async submissions return as
// soon as the pending row is written; sync submissions wait for the result.
type Service struct {
	pipeline   *Pipeline
	dispatcher *Dispatcher
}

func NewService(p *Pipeline, d *Dispatcher) *Service {
	return &Service{pipeline: p, dispatcher: d}
}

// Accepted is the acknowledgement of an async submission.
type Accepted struct {
	Status    string  `json:"status"`
	RequestID string  `json:"request_id"`
	Error     *string `json:"error,omitempty"`
}

// SubmitAsync records the request and schedules it. A validation failure is
// still acknowledged as accepted, with Error set; only infrastructure
// failures are returned as errors.
func (s *Service) SubmitAsync(ctx context.Context, mode string, body []byte) (*Accepted, error) {
	t, err := s.pipeline.Accept(ctx, body)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			metrics.SubmissionsTotal.WithLabelValues(mode, "invalid").Inc()
			code := "validation_error"
			return &Accepted{Status: "accepted", RequestID: t.RequestID, Error: &code}, nil
		}
		metrics.SubmissionsTotal.WithLabelValues(mode, "error").Inc()
		return nil, err
	}

	if err := s.pipeline.MarkPending(ctx, t); err != nil {
		metrics.SubmissionsTotal.WithLabelValues(mode, "error").Inc()
		return nil, fmt.Errorf("record pending request: %w", err)
	}

	err = s.dispatcher.Go(t.RequestID, func() {
		s.pipeline.Process(context.Background(), t)
	})
	if err != nil {
		// Never leave a pending row behind.
		s.pipeline.Abort(ctx, t, err)
		metrics.SubmissionsTotal.WithLabelValues(mode, "rejected").Inc()
		return nil, err
	}
	metrics.SubmissionsTotal.WithLabelValues(mode, "accepted").Inc()
	return &Accepted{Status: "accepted", RequestID: t.RequestID}, nil
}

// SubmitSync processes the request inline. The record is written once, in
// its terminal state.
func (s *Service) SubmitSync(ctx context.Context, body []byte) (*Result, error) {
	t, err := s.pipeline.Accept(ctx, body)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("sync", "invalid").Inc()
		return nil, err
	}
	res := s.pipeline.Process(ctx, t)
	metrics.SubmissionsTotal.WithLabelValues("sync", "accepted").Inc()
	return res, nil
}

// Close drains background tasks.
func (s *Service) Close(ctx context.Context) error {
	return s.dispatcher.Close(ctx)
}

// Abort records t as failed without running it.
func (p *Pipeline) Abort(ctx context.Context, t *Ticket, reason error) {
	res := &Result{RequestID: t.RequestID, Outcome: p.baseOutcome(t), LLMErr: reason}
	p.finish(ctx, res, p.deps.Now())
}

// Preview is a dry run of a stored prompt: rendered text and the model
// answer, nothing delivered or recorded.
type Preview struct {
	RenderedSystem string `json:"rendered_system,omitempty"`
	RenderedUser   string `json:"rendered_user"`
	Model          string `json:"model"`
	Text           string `json:"text,omitempty"`
	Error          string `json:"error,omitempty"`
	ElapsedMS      int64  `json:"elapsed_ms"`
}

// Preview renders slug with params and asks the LLM. Lookup and render
// failures are returned as errors; an LLM failure is reported in the
// Preview.
func (s *Service) Preview(ctx context.Context, slug string, params map[string]any) (*Preview, error) {
	p := s.pipeline
	if params == nil {
		params = map[string]any{}
	}
	r, err := p.resolve(ctx, &Request{PromptID: slug, Params: params})
	if err != nil {
		return nil, err
	}
	out := &Preview{RenderedSystem: r.system, RenderedUser: r.user, Model: r.model}
	if p.llmCfg.APIKey == "" {
		out.Error = ErrLLMNotConfigured.Error()
		return out, nil
	}

	start := time.Now()
	text, err := p.deps.LLM.Complete(ctx, llm.Request{
		Model:       r.model,
		APIKey:      p.llmCfg.APIKey,
		System:      r.system,
		User:        r.user,
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	})
	out.ElapsedMS = time.Since(start).Milliseconds()
	if err != nil {
		out.Error = err.Error()
		p.log().Warn("prompt_preview_failed", zap.String("prompt_slug", slug), zap.Error(err))
		return out, nil
	}
	out.Text = text
	return out, nil
}
