package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"deploy-orchestrator/internal/dto"
	"deploy-orchestrator/internal/pkg/auth"
	"deploy-orchestrator/internal/pkg/jwt"
	"deploy-orchestrator/pkg/constants"
	"deploy-orchestrator/pkg/responses"
)

// AuthMiddleware JWT认证中间件
//
// 调用方是CI系统/运维工具的服务账号, Token由 /auth/token 签发。
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 获取Authorization header
		authHeader := c.GetHeader(constants.HeaderAuthorization)
		if authHeader == "" {
			responses.ErrorWithCode(c, 401, "缺少Authorization Header")
			c.Abort()
			return
		}

		// 检查Bearer前缀
		if !strings.HasPrefix(authHeader, constants.HeaderBearerPrefix) {
			responses.ErrorWithCode(c, 401, "Authorization格式错误")
			c.Abort()
			return
		}

		// 提取Token
		token := strings.TrimPrefix(authHeader, constants.HeaderBearerPrefix)

		// 验证Token
		claims, err := jwt.ValidateToken(token)
		if err != nil {
			responses.Error(c, err)
			c.Abort()
			return
		}

		// 检查Token类型(必须是AccessToken)
		if claims.Type != constants.JWTTypeAccess {
			responses.ErrorWithCode(c, 401, "无效的Token类型")
			c.Abort()
			return
		}

		// 将账号信息存入context
		c.Set(constants.JWTContextKey, &dto.AccountInfo{
			Account: claims.Account,
			Role:    claims.Role,
		})
		c.Set("account", claims.Account)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// RequirePermission 权限检查中间件, 必须挂在AuthMiddleware之后
func RequirePermission(need auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		if !auth.Allow([]string{role}, need) {
			responses.ErrorWithCode(c, 403, "当前账号无权执行该操作")
			c.Abort()
			return
		}
		c.Next()
	}
}

// AccountFrom 从context取当前账号名, 未认证时为空串
func AccountFrom(c *gin.Context) string {
	return c.GetString("account")
}
