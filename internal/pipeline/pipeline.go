// Package pipeline turns a submit payload into a delivered Telegram message:
// resolve the prompt, call the LLM, deliver text or a document, and record
// the outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kayz/tgbridge/internal/config"
	"github.com/kayz/tgbridge/internal/llm"
	"github.com/kayz/tgbridge/internal/logger"
	"github.com/kayz/tgbridge/internal/metrics"
	"github.com/kayz/tgbridge/internal/security"
	"github.com/kayz/tgbridge/internal/store"
	"github.com/kayz/tgbridge/internal/telegram"
)

var (
	ErrMissingPromptSpec = errors.New("Either 'prompt' or 'prompt_id' must be provided")
	ErrLLMNotConfigured  = errors.New("LLM_API_KEY is not configured")
)

// PromptNotFoundError reports an unknown prompt_id.
type PromptNotFoundError struct {
	Slug string
}

func (e *PromptNotFoundError) Error() string { return fmt.Sprintf("Prompt '%s' not found", e.Slug) }

func (e *PromptNotFoundError) Is(target error) bool { return target == store.ErrNotFound }

const (
	persistTimeout = 15 * time.Second
	noticeTimeout  = 30 * time.Second
)

type PromptSource interface {
	GetPrompt(ctx context.Context, slug string) (*store.Prompt, error)
}

type OutcomeStore interface {
	CreatePending(ctx context.Context, o *store.Outcome) error
	UpsertOutcome(ctx context.Context, o *store.Outcome) error
}

type TemplateRenderer interface {
	Render(name, source string, params map[string]any) (string, error)
}

type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

type DocumentRenderer interface {
	Render(text string, now time.Time) ([]byte, error)
	Filename(now time.Time) string
	Caption() string
}

type Messenger interface {
	SendText(ctx context.Context, token string, chatID int64, text string) error
	SendDocument(ctx context.Context, token string, chatID int64, filename string, data []byte, caption string) error
}

// Deps are the collaborators of a Pipeline. Documents may be nil, in which
// case document requests fall back to text.
type Deps struct {
	Prompts   PromptSource
	Outcomes  OutcomeStore
	Templates TemplateRenderer
	LLM       Completer
	Documents DocumentRenderer
	Messenger Messenger

	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

type Pipeline struct {
	llmCfg   config.LLMConfig
	deadline time.Duration
	fallback string
	deps     Deps
}

func New(cfg *config.Config, deps Deps) *Pipeline {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }
	}
	fallback := cfg.Pipeline.FallbackText
	if fallback == "" {
		fallback = config.DefaultConfig().Pipeline.FallbackText
	}
	return &Pipeline{
		llmCfg:   cfg.LLM,
		deadline: cfg.Pipeline.Deadline,
		fallback: fallback,
		deps:     deps,
	}
}

func (p *Pipeline) log() *zap.Logger {
	if p.deps.Logger != nil {
		return p.deps.Logger
	}
	return logger.L()
}

// Ticket is an accepted request awaiting processing.
type Ticket struct {
	RequestID string
	Request   *Request
	received  time.Time
}

// Accept parses and validates body and assigns a request id. A malformed
// payload is recorded as a failed outcome and reported as *ValidationError
// together with the ticket carrying its request id.
func (p *Pipeline) Accept(ctx context.Context, body []byte) (*Ticket, error) {
	t := &Ticket{RequestID: p.deps.NewID(), received: p.deps.Now()}
	req, err := ParseRequest(body)
	if err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return t, err
		}
		verr.RequestID = t.RequestID
		msg := verr.Error()
		out := &store.Outcome{
			RequestID:  t.RequestID,
			PromptSlug: store.SlugInvalid,
			Params:     map[string]any{"validation_errors": verr.Fields},
			LLMError:   &msg,
			Status:     store.StatusFailed,
			CreatedAt:  t.received,
		}
		if perr := p.persist(ctx, out); perr != nil {
			p.log().Error("validation_record_failed", zap.String("request_id", t.RequestID), zap.Error(perr))
		}
		metrics.OutcomesTotal.WithLabelValues(string(store.StatusFailed)).Inc()
		p.log().Warn("puzzlebot_invalid", zap.String("request_id", t.RequestID), zap.String("error", msg))
		return t, verr
	}
	t.Request = req
	return t, nil
}

// MarkPending writes the pending row for an accepted ticket.
func (p *Pipeline) MarkPending(ctx context.Context, t *Ticket) error {
	return p.deps.Outcomes.CreatePending(ctx, p.baseOutcome(t))
}

func (p *Pipeline) baseOutcome(t *Ticket) *store.Outcome {
	return &store.Outcome{
		RequestID:  t.RequestID,
		PromptSlug: t.Request.SlugLabel(),
		UserID:     int64(t.Request.UserID),
		ChatID:     int64(t.Request.ChatID),
		Params:     t.Request.params(),
		Status:     store.StatusPending,
		CreatedAt:  t.received,
	}
}

// Result is the terminal state of one processed request.
type Result struct {
	RequestID string
	Outcome   *store.Outcome

	LLMErr      error
	DocumentErr error
	DeliveryErr error
	FallbackErr error
	Fallback    bool
}

// FailedStage names the first stage that failed, or "" on success.
func (r *Result) FailedStage() string {
	switch {
	case !r.Outcome.LLMOK:
		return "llm"
	case !r.Outcome.TelegramOK:
		return "delivery"
	}
	return ""
}

// Message returns the error text of the failed stage.
func (r *Result) Message() string {
	switch r.FailedStage() {
	case "llm":
		return errText(r.LLMErr)
	case "delivery":
		if r.DeliveryErr == nil {
			return errText(r.LLMErr)
		}
		return errText(r.DeliveryErr)
	}
	return ""
}

type resolved struct {
	system      string
	user        string
	model       string
	temperature float64
	maxTokens   int
}

// Process runs the request to a terminal state and records it. It never
// returns an error; every failure ends up in the Result.
func (p *Pipeline) Process(ctx context.Context, t *Ticket) (res *Result) {
	start := p.deps.Now()
	out := p.baseOutcome(t)
	res = &Result{RequestID: t.RequestID, Outcome: out}

	work := ctx
	if p.deadline > 0 {
		var cancel context.CancelFunc
		work, cancel = context.WithTimeout(ctx, p.deadline)
		defer cancel()
	}

	llmDone := false
	defer func() {
		if r := recover(); r != nil {
			if !llmDone {
				out.LLMOK = false
			}
			if res.LLMErr == nil {
				res.LLMErr = fmt.Errorf("Unhandled error: %v", r)
			}
		}
		p.finish(ctx, res, start)
	}()

	text, err := p.generate(work, t.Request, out)
	llmDone = true
	if err != nil {
		res.LLMErr = err
		res.Fallback = true
		res.FallbackErr = p.notify(ctx, t.Request)
		return res
	}
	out.LLMOK = true
	out.LLMResponseText = &text

	p.deliver(work, ctx, t.Request, text, res)
	return res
}

func (p *Pipeline) generate(ctx context.Context, req *Request, out *store.Outcome) (string, error) {
	r, err := p.resolve(ctx, req)
	if r != nil {
		if r.system != "" {
			out.RenderedSystem = &r.system
		}
		if r.user != "" {
			out.RenderedUser = &r.user
		}
	}
	if err != nil {
		return "", err
	}
	if p.llmCfg.APIKey == "" {
		return "", ErrLLMNotConfigured
	}

	return p.deps.LLM.Complete(ctx, llm.Request{
		Model:       r.model,
		APIKey:      p.llmCfg.APIKey,
		System:      r.system,
		User:        r.user,
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	})
}

// resolve turns the request into concrete prompt text and generation
// settings. A literal prompt wins over prompt_id.
func (p *Pipeline) resolve(ctx context.Context, req *Request) (*resolved, error) {
	if req.Prompt != nil {
		r := &resolved{
			user:        *req.Prompt,
			model:       p.llmCfg.DefaultModel,
			temperature: p.llmCfg.DefaultTemperature,
			maxTokens:   p.llmCfg.DefaultMaxTokens,
		}
		if req.System != nil {
			r.system = *req.System
		}
		if req.Model != nil {
			r.model = *req.Model
		}
		if req.Temperature != nil {
			r.temperature = *req.Temperature
		}
		if req.MaxTokens != nil {
			r.maxTokens = *req.MaxTokens
		}
		return r, nil
	}
	if req.PromptID == "" {
		return nil, ErrMissingPromptSpec
	}

	prompt, err := p.deps.Prompts.GetPrompt(ctx, req.PromptID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &PromptNotFoundError{Slug: req.PromptID}
	}
	if err != nil {
		return nil, fmt.Errorf("Prompt lookup error: %w", err)
	}

	r := &resolved{
		model:       prompt.Model,
		temperature: prompt.Temperature,
		maxTokens:   prompt.MaxTokens,
	}
	if r.model == "" {
		r.model = p.llmCfg.DefaultModel
	}
	params := req.params()
	if prompt.SystemTemplate != "" {
		if r.system, err = p.deps.Templates.Render(prompt.Slug+".system", prompt.SystemTemplate, params); err != nil {
			return nil, fmt.Errorf("Prompt render error: %w", err)
		}
	}
	if r.user, err = p.deps.Templates.Render(prompt.Slug+".user", prompt.UserTemplate, params); err != nil {
		return r, fmt.Errorf("Prompt render error: %w", err)
	}
	return r, nil
}

// deliver sends text, as a document when requested. A failed document
// falls back to plain text and keeps the document error as context.
func (p *Pipeline) deliver(work, ctx context.Context, req *Request, text string, res *Result) {
	out := res.Outcome
	chatID := int64(req.ChatID)

	if req.SendPDF {
		err := p.sendDocument(work, req, text)
		if err == nil {
			out.TelegramOK = true
			return
		}
		res.DocumentErr = err
		p.log().Warn("document_fallback",
			zap.String("request_id", res.RequestID),
			zap.String("error", security.MaskBotTokenInURL(err.Error())))
	}

	err := p.deps.Messenger.SendText(work, req.BotAPIKey, chatID, text)
	if err == nil {
		out.TelegramOK = true
		return
	}
	res.DeliveryErr = err
	if sentParts(err) == 0 {
		res.Fallback = true
		res.FallbackErr = p.notify(ctx, req)
	}
}

func (p *Pipeline) sendDocument(ctx context.Context, req *Request, text string) error {
	if p.deps.Documents == nil {
		return errors.New("PDF generation error: document rendering is not configured")
	}
	now := p.deps.Now()
	data, err := p.renderDocument(text, now)
	if err != nil {
		return fmt.Errorf("PDF generation error: %w", err)
	}
	return p.deps.Messenger.SendDocument(ctx, req.BotAPIKey, int64(req.ChatID),
		p.deps.Documents.Filename(now), data, p.deps.Documents.Caption())
}

func (p *Pipeline) renderDocument(text string, now time.Time) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return p.deps.Documents.Render(text, now)
}

// notify sends the fallback notice once. Its failure is reported to the
// caller for the record only.
func (p *Pipeline) notify(ctx context.Context, req *Request) error {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), noticeTimeout)
	defer cancel()
	err := p.deps.Messenger.SendText(nctx, req.BotAPIKey, int64(req.ChatID), p.fallback)
	metrics.FallbackNoticesTotal.WithLabelValues(metrics.Result(err)).Inc()
	return err
}

func (p *Pipeline) finish(ctx context.Context, res *Result, start time.Time) {
	out := res.Outcome
	out.LLMError = errPtr(res.LLMErr)
	switch {
	case res.DeliveryErr != nil:
		out.TelegramError = errPtr(res.DeliveryErr)
	case res.DocumentErr != nil:
		out.TelegramError = errPtr(res.DocumentErr)
	case res.FallbackErr != nil:
		msg := "Fallback notice failed: " + res.FallbackErr.Error()
		out.TelegramError = &msg
	}
	if out.TelegramError != nil {
		masked := security.MaskBotTokenInURL(*out.TelegramError)
		out.TelegramError = &masked
	}

	switch {
	case !out.LLMOK, !out.TelegramOK:
		out.Status = store.StatusFailed
	case res.DocumentErr != nil:
		out.Status = store.StatusDeliveredWithFallback
	default:
		out.Status = store.StatusDelivered
	}

	if err := p.persist(ctx, out); err != nil {
		p.log().Error("outcome_persist_failed", zap.String("request_id", res.RequestID), zap.Error(err))
	}

	elapsed := p.deps.Now().Sub(start)
	metrics.OutcomesTotal.WithLabelValues(string(out.Status)).Inc()
	metrics.PipelineDuration.Observe(elapsed.Seconds())

	fields := []zap.Field{
		zap.String("request_id", res.RequestID),
		zap.String("prompt_slug", out.PromptSlug),
		zap.Int64("chat_id", out.ChatID),
		zap.String("status", string(out.Status)),
		zap.Bool("llm_ok", out.LLMOK),
		zap.Bool("telegram_ok", out.TelegramOK),
		zap.Duration("elapsed", elapsed),
	}
	if res.Fallback {
		fields = append(fields, zap.Bool("fallback_sent", res.FallbackErr == nil))
	}
	switch {
	case !out.LLMOK:
		p.log().Error("puzzlebot_done", append(fields, zap.String("llm_error", deref(out.LLMError)))...)
	case !out.TelegramOK:
		p.log().Error("puzzlebot_done", append(fields, zap.String("telegram_error", deref(out.TelegramError)))...)
	default:
		p.log().Info("puzzlebot_done", fields...)
	}
}

// persist writes out on a context detached from request cancellation so a
// deadline or shutdown never loses the record.
func (p *Pipeline) persist(ctx context.Context, out *store.Outcome) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	return p.deps.Outcomes.UpsertOutcome(pctx, out)
}

func sentParts(err error) int {
	var derr *telegram.DeliveryError
	if errors.As(err, &derr) {
		return derr.SentParts
	}
	return 0
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func errPtr(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
