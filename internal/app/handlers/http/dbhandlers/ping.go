// Package dbhandlers содержит HTTP-хендлер проверки доступности хранилища голосов.
package dbhandlers

import (
	"context"
	"net/http"

	"github.com/aseptimu/matchup-votes/internal/app/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger - хранилище, которое умеет проверить своё соединение.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingHandler struct {
	store  Pinger
	logger *zap.SugaredLogger
}

func NewPingHandler(store Pinger, logger *zap.SugaredLogger) *PingHandler {
	return &PingHandler{store: store, logger: logger}
}

// Ping обрабатывает GET /ping.
// Без хранилища отвечает 503, при ошибке Ping - 500, иначе пустой 200 OK.
func (h *PingHandler) Ping(c *gin.Context) {
	utils.LogRequest(c, h.logger)

	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Vote store is not configured"})
		return
	}

	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.logger.Warnw("Store ping failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}
