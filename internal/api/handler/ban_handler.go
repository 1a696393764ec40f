package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/anonrelay/internal/api/middleware"
	"github.com/d60-Lab/anonrelay/internal/repository"
	"github.com/d60-Lab/anonrelay/pkg/response"
)

type banRequest struct {
	UserID int64  `json:"user_id" binding:"required,gt=0"`
	Reason string `json:"reason"`
}

// ListBanned 封禁列表（最早的在前）
// @Summary 封禁列表
// @Tags 封禁
// @Param limit query int false "数量" default(50)
// @Success 200 {object} response.Response
// @Router /api/v1/bans [get]
func (h *Handler) ListBanned(c *gin.Context) {
	list, err := h.admin.ListBanned(c.Request.Context(), queryLimit(c, repository.DefaultBannedLimit))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"list": list})
}

// BanUser 手动封禁
// @Summary 封禁用户
// @Tags 封禁
// @Accept json
// @Param request body banRequest true "封禁信息"
// @Success 201 {object} response.Response{data=model.BanRecord}
// @Failure 409 {object} response.Response
// @Router /api/v1/bans [post]
func (h *Handler) BanUser(c *gin.Context) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rec, err := h.admin.BanUser(c.Request.Context(), req.UserID, middleware.AdminID(c), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, rec)
}

// UnbanUser 解除封禁
// @Summary 解除封禁
// @Tags 封禁
// @Param user_id path int true "用户ID"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/bans/{user_id} [delete]
func (h *Handler) UnbanUser(c *gin.Context) {
	id, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	if err := h.admin.UnbanUser(c.Request.Context(), id, middleware.AdminID(c)); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"user_id": id})
}

// UnbanAll 解除全部封禁，举报记录不变
// @Summary 解除全部封禁
// @Tags 封禁
// @Success 200 {object} response.Response
// @Router /api/v1/bans [delete]
func (h *Handler) UnbanAll(c *gin.Context) {
	n, err := h.moderation.UnbanAll(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"unbanned": n})
}
