package handler

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/anonrelay/internal/telegram"
	"github.com/d60-Lab/anonrelay/pkg/logger"
	"github.com/d60-Lab/anonrelay/pkg/response"
)

const headerWebhookSecret = "X-Telegram-Bot-Api-Secret-Token"

// TelegramWebhook 接收 Bot API 推送，入队后立即返回 200
// @Summary Telegram webhook
// @Tags Telegram
// @Param bot path string true "main | review"
// @Success 200 {object} response.Response
// @Router /telegram/{bot} [post]
func (h *Handler) TelegramWebhook(c *gin.Context) {
	name := c.Param("bot")
	handle, ok := h.webhooks[name]
	if !ok {
		response.NotFound(c, "unknown bot")
		return
	}
	got := c.GetHeader(headerWebhookSecret)
	if h.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
		response.Unauthorized(c, "bad webhook secret")
		return
	}
	var u telegram.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	queued := h.dispatcher.Enqueue("telegram."+name, func(ctx context.Context) error {
		return handle(ctx, u)
	})
	if !queued {
		// Telegram 会重试非 2xx 的推送
		logger.Warn("webhook update dropped", zap.String("bot", name), zap.Int64("update_id", u.UpdateID))
		response.Error(c, http.StatusServiceUnavailable, "busy")
		return
	}
	response.Success(c, nil)
}
