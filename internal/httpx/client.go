// Package httpx builds the pooled outbound HTTP client shared by the LLM and
// Telegram clients.
package httpx

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/kayz/tgbridge/internal/config"
	"github.com/kayz/tgbridge/internal/logger"
	"github.com/kayz/tgbridge/internal/security"
	"go.uber.org/zap"
)

// NewClient returns a client with bounded connection pools. Total concurrent
// connections are capped by limiting dials; per-destination connections by
// MaxConnsPerHost.
func NewClient(cfg config.HTTPClientConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	dial := dialer.DialContext
	if cfg.MaxConns > 0 {
		dial = limitDials(dial, cfg.MaxConns)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dial,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConns,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.DialTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
	}

	var rt http.RoundTripper = transport
	if cfg.Debug {
		rt = &LoggingTransport{Transport: transport}
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: rt,
	}
}

// LoggingTransport logs each outbound exchange at debug level with bot
// tokens and secret body fields masked.
type LoggingTransport struct {
	Transport http.RoundTripper
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqBody := "empty"
	if req.Body != nil && req.Header.Get("Content-Type") == "application/json" {
		data, _ := io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(data))
		if len(data) > 0 {
			reqBody = security.MaskJSON(data)
		}
	}
	url := security.MaskBotTokenInURL(req.URL.String())

	start := time.Now()
	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	resp, err := transport.RoundTrip(req)
	latency := time.Since(start)

	if err != nil {
		logger.L().Debug("outbound_error",
			zap.String("method", req.Method),
			zap.String("url", url),
			zap.Duration("latency", latency),
			zap.String("error", security.MaskBotTokenInURL(err.Error())))
		return nil, err
	}

	logger.L().Debug("outbound",
		zap.String("method", req.Method),
		zap.String("url", url),
		zap.String("body", reqBody),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", latency))
	return resp, nil
}
