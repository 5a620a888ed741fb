// Package llm talks to an OpenAI-compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kayz/tgbridge/internal/config"
	"github.com/kayz/tgbridge/internal/logger"
	"github.com/kayz/tgbridge/internal/metrics"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

// CompatMaxTokens replaces an unlimited token budget when the provider
// insists on max_completion_tokens, which cannot be omitted.
const CompatMaxTokens = 8192

// Request is one chat completion call.
type Request struct {
	Model       string
	APIKey      string
	System      string // optional
	User        string
	Temperature float64
	MaxTokens   int // <= 0 means provider default
}

// Client sends chat completions. It is safe for concurrent use.
type Client struct {
	cfg     config.LLMConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// New creates a client that sends through httpClient.
func New(cfg config.LLMConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	c := &Client{cfg: cfg, http: httpClient}
	if cfg.Breaker.Enabled {
		c.breaker = newBreaker(cfg.Breaker)
	}
	return c
}

func newBreaker(cfg config.BreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		// Provider-side rejections (4xx) say nothing about endpoint health.
		IsSuccessful: func(err error) bool {
			var le *Error
			if errors.As(err, &le) {
				return !le.Transient()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[LLM] circuit breaker %s: %s -> %s", name, from, to)
		},
	})
}

// Complete returns the assistant text for req. Every failure is an *Error.
// Transient failures are retried up to cfg.MaxRetries times with exponential
// backoff; the token-field compatibility retry happens inside each attempt.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr *Error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
			logger.Info("[LLM] retrying after transient failure (attempt %d, wait %v): %v", attempt+1, wait, lastErr)
			select {
			case <-ctx.Done():
				return "", transportError(ctx.Err())
			case <-time.After(wait):
			}
		}

		text, err := c.guarded(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !err.Transient() || ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func (c *Client) guarded(ctx context.Context, req Request) (string, *Error) {
	if c.breaker == nil {
		return c.exchange(ctx, req)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		text, lerr := c.exchange(ctx, req)
		if lerr != nil {
			return nil, lerr
		}
		return text, nil
	})
	if err != nil {
		var le *Error
		if errors.As(err, &le) {
			return "", le
		}
		// gobreaker.ErrOpenState / ErrTooManyRequests
		return "", &Error{Message: fmt.Sprintf("LLM request failed: %v", err)}
	}
	return out.(string), nil
}

// exchange performs one logical call: the request plus at most one
// compatibility retry using max_completion_tokens.
func (c *Client) exchange(ctx context.Context, req Request) (string, *Error) {
	url := ChatCompletionsURL(c.cfg.BaseURL)
	start := time.Now()

	resp, err := c.post(ctx, url, req.APIKey, buildPayload(req, false))
	if err == nil && resp.status == http.StatusBadRequest && needsCompletionTokens(resp.body) {
		logger.Info("[LLM] %s rejected max_tokens, retrying with max_completion_tokens", req.Model)
		metrics.LLMCompatRetries.Inc()
		resp, err = c.post(ctx, url, req.APIKey, buildPayload(req, true))
	}

	text, lerr := c.result(url, resp, err)
	metrics.LLMRequestDuration.WithLabelValues(req.Model, metrics.Result(errOrNil(lerr))).Observe(time.Since(start).Seconds())
	return text, lerr
}

func (c *Client) result(url string, resp *httpResult, err error) (string, *Error) {
	if err != nil {
		return "", transportError(err)
	}
	if resp.status < 200 || resp.status >= 300 {
		return "", statusError(resp.status, url, resp.body, resp.contentType)
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.body, &parsed); err != nil {
		return "", &Error{
			Message:    fmt.Sprintf("LLM returned invalid JSON at %s: %s", url, snippet(resp.body, bodySnippetLimit)),
			StatusCode: resp.status,
		}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == nil {
		return "", &Error{
			Message:    fmt.Sprintf("LLM response missing choices[0].message.content at %s: %s", url, snippet(resp.body, bodySnippetLimit)),
			StatusCode: resp.status,
		}
	}
	text := *parsed.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", &Error{Message: fmt.Sprintf("LLM returned empty content at %s", url), StatusCode: resp.status}
	}
	return text, nil
}

type httpResult struct {
	status      int
	contentType string
	body        []byte
}

func (c *Client) post(ctx context.Context, url, apiKey string, payload openai.ChatCompletionRequest) (*httpResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq, apiKey)
	return c.do(httpReq)
}

func (c *Client) do(httpReq *http.Request) (*httpResult, error) {
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &httpResult{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type"), body: body}, nil
}

func (c *Client) authorize(req *http.Request, apiKey string) {
	if c.cfg.AuthHeader == "" || apiKey == "" {
		return
	}
	value := apiKey
	if c.cfg.AuthPrefix != "" {
		value = c.cfg.AuthPrefix + " " + apiKey
	}
	req.Header.Set(c.cfg.AuthHeader, value)
}

func buildPayload(req Request, completionTokens bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.User})

	payload := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	}
	// temperature is omitempty; the smallest float32 survives it and reads as 0.
	if req.Temperature == 0 {
		payload.Temperature = math.SmallestNonzeroFloat32
	}

	switch {
	case completionTokens && req.MaxTokens > 0:
		payload.MaxCompletionTokens = req.MaxTokens
	case completionTokens:
		payload.MaxCompletionTokens = CompatMaxTokens
	case req.MaxTokens > 0:
		payload.MaxTokens = req.MaxTokens
	}
	return payload
}

func needsCompletionTokens(body []byte) bool {
	head := snippet(body, compatScanLimit)
	return strings.Contains(head, "max_tokens") && strings.Contains(head, "max_completion_tokens")
}

func errOrNil(e *Error) error {
	if e == nil {
		return nil
	}
	return e
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
