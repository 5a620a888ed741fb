package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kayz/tgbridge/internal/logger"
	"github.com/kayz/tgbridge/internal/pipeline"
	"github.com/kayz/tgbridge/internal/store"
)

const maxBodyBytes = 1 << 20

func readBody(c *gin.Context) ([]byte, bool) {
	if body, ok := c.Get(bodyKey); ok {
		return body.([]byte), true
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "could not read request body")
		return nil, false
	}
	return body, true
}

func (s *Server) handleSubmitAsync(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	ack, err := s.service.SubmitAsync(c.Request.Context(), "async", body)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrShuttingDown) {
			status = http.StatusServiceUnavailable
		}
		logger.L().Error("submit_failed", zap.Error(err))
		errorJSON(c, status, err.Error())
		return
	}
	c.JSON(http.StatusOK, ack)
}

func (s *Server) handleSubmitSync(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	res, err := s.service.SubmitSync(c.Request.Context(), body)
	if err != nil {
		var verr *pipeline.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"status":     "error",
				"stage":      "validation",
				"request_id": verr.RequestID,
				"error":      verr.Error(),
				"fields":     verr.Fields,
			})
			return
		}
		logger.L().Error("submit_failed", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}

	if stage := res.FailedStage(); stage != "" {
		c.JSON(http.StatusBadGateway, gin.H{
			"status":     "error",
			"stage":      stage,
			"request_id": res.RequestID,
			"error":      res.Message(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"request_id":  res.RequestID,
		"llm_ok":      res.Outcome.LLMOK,
		"telegram_ok": res.Outcome.TelegramOK,
		"outcome":     res.Outcome.Status,
	})
}

func (s *Server) handleGetRequest(c *gin.Context) {
	out, err := s.store.GetLatestByRequestID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, "Request log not found yet")
		return
	}
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, out)
}
