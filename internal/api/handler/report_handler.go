package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/anonrelay/internal/api/middleware"
	"github.com/d60-Lab/anonrelay/internal/repository"
	"github.com/d60-Lab/anonrelay/pkg/response"
)

type fileReportRequest struct {
	ReporterID         int64 `json:"reporter_id" binding:"required,gt=0"`
	TransportMessageID int64 `json:"transport_message_id" binding:"required,gt=0"`
}

// FileReport 举报一条已投递的消息
// @Summary 举报消息
// @Tags 举报
// @Accept json
// @Produce json
// @Param request body fileReportRequest true "举报信息"
// @Success 201 {object} response.Response{data=service.FileReportResult}
// @Failure 422 {object} response.Response
// @Router /api/v1/reports [post]
func (h *Handler) FileReport(c *gin.Context) {
	var req fileReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.moderation.FileReport(c.Request.Context(), req.ReporterID, req.TransportMessageID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, res)
}

// ListPendingReports 待审核举报（FIFO）
// @Summary 待审核举报
// @Tags 举报
// @Param limit query int false "数量" default(20)
// @Success 200 {object} response.Response
// @Router /api/v1/reports/pending [get]
func (h *Handler) ListPendingReports(c *gin.Context) {
	list, err := h.admin.Pending(c.Request.Context(), queryLimit(c, repository.DefaultPendingLimit))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"list": list})
}

// BanReport 封禁举报中的发送者
// @Summary 处理举报：封禁
// @Tags 举报
// @Param id path int true "举报ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/reports/{id}/ban [post]
func (h *Handler) BanReport(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	outcome, err := h.moderation.AdminBan(c.Request.Context(), id, middleware.AdminID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"report_id": id, "outcome": outcome})
}

// DismissReport 忽略举报
// @Summary 处理举报：忽略
// @Tags 举报
// @Param id path int true "举报ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/reports/{id}/dismiss [post]
func (h *Handler) DismissReport(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	outcome, err := h.moderation.AdminDismiss(c.Request.Context(), id, middleware.AdminID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"report_id": id, "outcome": outcome})
}
