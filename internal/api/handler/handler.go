package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/anonrelay/internal/api/middleware"
	"github.com/d60-Lab/anonrelay/internal/repository"
	"github.com/d60-Lab/anonrelay/internal/service"
	"github.com/d60-Lab/anonrelay/internal/telegram"
	"github.com/d60-Lab/anonrelay/pkg/response"
)

// Handler 管理/集成用的 HTTP 接口
type Handler struct {
	relay      *service.Relay
	moderation *service.Moderation
	admin      *service.Admin
	account    *service.Account

	issuer       *middleware.TokenIssuer
	admins       map[int64]bool
	passwordHash []byte

	dispatcher    *service.Dispatcher
	webhooks      map[string]telegram.UpdateHandler
	webhookSecret string
}

type Options struct {
	Relay        *service.Relay
	Moderation   *service.Moderation
	Admin        *service.Admin
	Account      *service.Account
	Issuer       *middleware.TokenIssuer
	Admins       []int64
	PasswordHash string

	Dispatcher    *service.Dispatcher
	Webhooks      map[string]telegram.UpdateHandler
	WebhookSecret string
}

func New(opts Options) *Handler {
	admins := make(map[int64]bool, len(opts.Admins))
	for _, id := range opts.Admins {
		admins[id] = true
	}
	return &Handler{
		relay:         opts.Relay,
		moderation:    opts.Moderation,
		admin:         opts.Admin,
		account:       opts.Account,
		issuer:        opts.Issuer,
		admins:        admins,
		passwordHash:  []byte(opts.PasswordHash),
		dispatcher:    opts.Dispatcher,
		webhooks:      opts.Webhooks,
		webhookSecret: opts.WebhookSecret,
	}
}

// writeError 把领域错误映射为 HTTP 状态码
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrEmptyText), errors.Is(err, repository.ErrInvalidUserID):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrBanned):
		response.Forbidden(c, err.Error())
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrMessageNotFound),
		errors.Is(err, repository.ErrReportNotFound),
		errors.Is(err, repository.ErrBanNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrAlreadyBanned), errors.Is(err, service.ErrNotBanned):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrNotEligible):
		response.Unprocessable(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryLimit(c *gin.Context, def int) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || n <= 0 || n > 500 {
		return def
	}
	return n
}

// Healthz 存活检查
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
