package dto

// TokenRequest 获取令牌请求
type TokenRequest struct {
	Account string `json:"account" binding:"required,min=2,max=64"` // 服务账号名
	Secret  string `json:"secret" binding:"required,min=6,max=128"` // 账号密钥
}

// TokenResponse 令牌响应
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // access token 有效期（秒）
}

// RefreshTokenRequest 刷新令牌请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// AccountInfo 当前账号信息
type AccountInfo struct {
	Account string `json:"account"`
	Role    string `json:"role"`
}
