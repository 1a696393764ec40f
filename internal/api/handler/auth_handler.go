package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/anonrelay/pkg/response"
)

type loginRequest struct {
	AdminID  int64  `json:"admin_id" binding:"required,gt=0"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login 管理员登录
// @Summary 管理员登录，返回 Bearer token
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body loginRequest true "登录信息"
// @Success 200 {object} response.Response{data=loginResponse}
// @Failure 401 {object} response.Response
// @Router /api/v1/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !h.admins[req.AdminID] || len(h.passwordHash) == 0 ||
		bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)) != nil {
		response.Unauthorized(c, "invalid credentials")
		return
	}
	token, exp, err := h.issuer.Issue(req.AdminID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, loginResponse{Token: token, ExpiresAt: exp})
}
