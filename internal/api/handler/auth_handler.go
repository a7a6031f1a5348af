package handler

import (
	"github.com/gin-gonic/gin"

	"deploy-orchestrator/internal/dto"
	"deploy-orchestrator/internal/service"
	"deploy-orchestrator/pkg/constants"
	"deploy-orchestrator/pkg/responses"
	"deploy-orchestrator/pkg/utils"
)

type AuthHandler struct {
	authService service.AuthService
}

func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Token 签发令牌
// @Summary 获取访问令牌
// @Description 服务账号用名称+密钥换取access/refresh令牌对
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body dto.TokenRequest true "令牌请求"
// @Success 200 {object} dto.TokenResponse
// @Router /api/v1/auth/token [post]
func (h *AuthHandler) Token(c *gin.Context) {
	var req dto.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, 400, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	resp, err := h.authService.IssueToken(&req)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, resp)
}

// Refresh 刷新Token
// @Summary 刷新访问Token
// @Description 使用RefreshToken获取新的令牌对
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body dto.RefreshTokenRequest true "刷新Token请求"
// @Success 200 {object} dto.TokenResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, 400, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	resp, err := h.authService.RefreshToken(req.RefreshToken)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, resp)
}

// GetMe 获取当前账号信息
// @Summary 获取当前账号信息
// @Description 从JWT Token中还原当前服务账号
// @Tags 认证
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.AccountInfo
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	// 由认证中间件设置
	account, exists := c.Get(constants.JWTContextKey)
	if !exists {
		responses.ErrorWithCode(c, 401, "未认证")
		return
	}

	responses.Success(c, account)
}
