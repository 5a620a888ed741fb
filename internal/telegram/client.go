// Package telegram delivers text and documents through the Telegram Bot API
// on behalf of a caller-supplied bot token.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/kayz/tgbridge/internal/config"
	"github.com/kayz/tgbridge/internal/logger"
	"github.com/kayz/tgbridge/internal/metrics"
	"github.com/kayz/tgbridge/internal/security"
	"golang.org/x/time/rate"
)

// DeliveryError is the single failure kind of the client. SentParts counts
// the chunks delivered before the failure; zero means nothing reached the chat.
type DeliveryError struct {
	Message   string
	SentParts int
	Err       error
}

func (e *DeliveryError) Error() string { return e.Message }

func (e *DeliveryError) Unwrap() error { return e.Err }

// Client sends messages. Tokens are per call, so one Client serves any bot.
type Client struct {
	endpoint  string
	http      *http.Client
	safeLimit int
	pace      rate.Limit
}

// New creates a client that sends through httpClient.
func New(cfg config.TelegramConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	limit := cfg.SafeLimit
	if limit <= 0 || limit > MessageLimit {
		limit = SafeLimit
	}
	pace := rate.Inf
	if cfg.PartsPerSecond > 0 {
		pace = rate.Limit(cfg.PartsPerSecond)
	}
	return &Client{endpoint: endpoint, http: httpClient, safeLimit: limit, pace: pace}
}

// SendText delivers text as one or more ordered messages. Parts are sent
// strictly one after another; the first failure stops delivery.
func (c *Client) SendText(ctx context.Context, token string, chatID int64, text string) error {
	parts := SplitText(text, c.safeLimit)
	if len(parts) == 0 {
		return &DeliveryError{Message: "Telegram error: message text is empty"}
	}

	bot := c.bot(ctx, token)
	limiter := rate.NewLimiter(c.pace, 1)
	for i, part := range parts {
		if err := limiter.Wait(ctx); err != nil {
			return c.fail("sendMessage", err, i)
		}
		msg := tgbotapi.NewMessage(chatID, part)
		msg.DisableWebPagePreview = true
		if _, err := bot.Request(msg); err != nil {
			return c.fail("sendMessage", err, i)
		}
		metrics.TelegramMessagesTotal.WithLabelValues("sendMessage", "ok").Inc()
	}
	if len(parts) > 1 {
		logger.Debug("[Telegram] delivered %d parts to chat %d", len(parts), chatID)
	}
	return nil
}

// SendDocument uploads data as a single document.
func (c *Client) SendDocument(ctx context.Context, token string, chatID int64, filename string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: filename, Bytes: data})
	doc.Caption = caption
	if _, err := c.bot(ctx, token).Request(doc); err != nil {
		return c.fail("sendDocument", err, 0)
	}
	metrics.TelegramMessagesTotal.WithLabelValues("sendDocument", "ok").Inc()
	return nil
}

// bot builds a BotAPI bound to ctx without the getMe round trip that
// tgbotapi.NewBotAPI performs.
func (c *Client) bot(ctx context.Context, token string) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  token,
		Client: ctxClient{ctx: ctx, client: c.http},
		Buffer: 100,
	}
	bot.SetAPIEndpoint(c.endpoint)
	return bot
}

func (c *Client) fail(method string, err error, sent int) *DeliveryError {
	metrics.TelegramMessagesTotal.WithLabelValues(method, "error").Inc()

	var apiErr *tgbotapi.Error
	var msg string
	if errors.As(err, &apiErr) {
		msg = fmt.Sprintf("Telegram error %d: %s", apiErr.Code, apiErr.Message)
	} else {
		msg = "Telegram request failed: " + security.MaskBotTokenInURL(err.Error())
	}
	return &DeliveryError{Message: msg, SentParts: sent, Err: err}
}

// ctxClient attaches a context to requests built by tgbotapi, which does not
// take one itself.
type ctxClient struct {
	ctx    context.Context
	client *http.Client
}

func (c ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}
