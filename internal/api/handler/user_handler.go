package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/anonrelay/pkg/response"
)

// UserStats 用户统计
// @Summary 用户统计（计数、称号、下一档）
// @Tags 用户
// @Param user_id path int true "用户ID"
// @Success 200 {object} response.Response{data=service.UserStats}
// @Failure 404 {object} response.Response
// @Router /api/v1/users/{user_id}/stats [get]
func (h *Handler) UserStats(c *gin.Context) {
	id, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	st, err := h.account.Stats(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, st)
}

// RecountUser 全量重算 message_count / tier
// @Summary 重算用户计数
// @Tags 用户
// @Param user_id path int true "用户ID"
// @Success 200 {object} response.Response{data=service.UserStats}
// @Router /api/v1/users/{user_id}/recount [post]
func (h *Handler) RecountUser(c *gin.Context) {
	id, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	st, err := h.account.Recount(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, st)
}

// SystemStats 系统统计
// @Summary 系统统计
// @Tags 管理
// @Success 200 {object} response.Response{data=repository.SystemStats}
// @Router /api/v1/stats [get]
func (h *Handler) SystemStats(c *gin.Context) {
	st, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, st)
}
