package response

import (
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/anonrelay/pkg/logger"
)

// Response 统一返回结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "ok", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: 0, Message: "created", Data: data})
}

// Error 以 HTTP 状态码作为业务码返回
func Error(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Response{Code: status, Message: msg})
}

// WithData 错误但仍携带数据（例如投递失败时返回已落库的 message_id）
func WithData(c *gin.Context, status int, msg string, data interface{}) {
	c.AbortWithStatusJSON(status, Response{Code: status, Message: msg, Data: data})
}

func BadRequest(c *gin.Context, msg string)    { Error(c, http.StatusBadRequest, msg) }
func Unauthorized(c *gin.Context, msg string)  { Error(c, http.StatusUnauthorized, msg) }
func Forbidden(c *gin.Context, msg string)     { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)      { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)      { Error(c, http.StatusConflict, msg) }
func Unprocessable(c *gin.Context, msg string) { Error(c, http.StatusUnprocessableEntity, msg) }

// InternalError 记录并上报未预期的错误，对外隐藏细节
func InternalError(c *gin.Context, err error) {
	logger.Error("internal error",
		zap.Error(err),
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString("request_id")),
	)
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		hub.CaptureException(err)
	}
	Error(c, http.StatusInternalServerError, "internal server error")
}
