package api

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kayz/tgbridge/internal/config"
	"github.com/kayz/tgbridge/internal/logger"
	"github.com/kayz/tgbridge/internal/metrics"
	"github.com/kayz/tgbridge/internal/security"
)

const (
	requestIDHeader = "X-Request-ID"
	bodyKey         = "tgbridge.body"
)

// RequestLogger logs every request with a correlation id. Submit requests
// are logged as "puzzlebot_incoming" when cfg.Incoming is set, with the
// masked body when cfg.IncomingBody is set.
func RequestLogger(cfg config.LoggingConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(requestIDHeader, requestID)
		c.Set("RequestID", requestID)

		incoming := cfg.Incoming && isSubmit(c)
		var body []byte
		if incoming && cfg.IncomingBody {
			body, _ = io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
			c.Set(bodyKey, body)
		}

		c.Next()

		fields := []zap.Field{
			zap.String("http_request_id", requestID),
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		for _, e := range c.Errors.Errors() {
			fields = append(fields, zap.String("error", e))
		}

		log := logger.L()
		switch {
		case incoming:
			if body != nil {
				fields = append(fields, zap.String("body", security.MaskJSON(body)))
			}
			log.Info("puzzlebot_incoming", fields...)
		case c.Writer.Status() >= 500:
			log.Error("Server Error", fields...)
		case c.Writer.Status() >= 400:
			log.Warn("Client Error", fields...)
		default:
			log.Debug("Request", fields...)
		}
	}
}

func isSubmit(c *gin.Context) bool {
	return c.Request.Method == "POST" && strings.HasPrefix(c.Request.URL.Path, "/api/v1/puzzlebot/")
}

// Metrics records request counts and latency by route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
