package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/anonrelay/internal/service"
	"github.com/d60-Lab/anonrelay/pkg/response"
)

// SendMessage 发送匿名消息
// @Summary 通过 Relay 发送匿名消息
// @Tags 消息
// @Accept json
// @Produce json
// @Param request body service.SendRequest true "消息"
// @Success 201 {object} response.Response{data=service.SendResult}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 502 {object} response.Response
// @Router /api/v1/messages [post]
func (h *Handler) SendMessage(c *gin.Context) {
	var req service.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.relay.Send(c.Request.Context(), req)
	if errors.Is(err, service.ErrDeliveryFailed) {
		// 消息已落库，只是没送达
		response.WithData(c, http.StatusBadGateway, err.Error(), res)
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, res)
}
