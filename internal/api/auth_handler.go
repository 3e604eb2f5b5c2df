package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/boat-telnet/internal/utils"
)

// 设备只有一个管理账号
const adminUsername = "admin"

// AuthHandler 认证处理器
type AuthHandler struct {
	jwt          *utils.JWTManager
	passwordHash string
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(jwt *utils.JWTManager, passwordHash string) *AuthHandler {
	return &AuthHandler{
		jwt:          jwt,
		passwordHash: passwordHash,
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login 管理员登录
// @Summary 管理员登录
// @Description 校验管理密码并签发访问令牌
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "登录信息"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	if h.passwordHash == "" || h.jwt == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "AUTH_DISABLED",
			Message: "未启用认证",
		})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	ok, err := utils.VerifyPassword(req.Password, h.passwordHash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INVALID_HASH",
			Message: "管理密码配置错误",
		})
		return
	}
	if !ok || req.Username != adminUsername {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    "LOGIN_FAILED",
			Message: "用户名或密码错误",
		})
		return
	}

	token, expiresAt, err := h.jwt.Generate(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "TOKEN_FAILED",
			Message: "生成令牌失败",
		})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	})
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
