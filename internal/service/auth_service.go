package service

import (
	"github.com/samber/lo"

	"deploy-orchestrator/internal/dto"
	"deploy-orchestrator/internal/pkg/config"
	"deploy-orchestrator/internal/pkg/crypto"
	"deploy-orchestrator/internal/pkg/jwt"
	"deploy-orchestrator/pkg/constants"
	pkgErrors "deploy-orchestrator/pkg/errors"
)

// AuthService 服务账号认证
//
// 调用方是CI系统而不是人, 账号在配置文件里声明, 密钥只保存bcrypt哈希,
// 没有注册/改密流程。
type AuthService interface {
	IssueToken(req *dto.TokenRequest) (*dto.TokenResponse, error)
	RefreshToken(refreshToken string) (*dto.TokenResponse, error)
	VerifyToken(token string) (*dto.AccountInfo, error)
}

type authService struct {
	cfg *config.AuthConfig
}

// NewAuthService 创建认证服务
func NewAuthService(cfg *config.AuthConfig) AuthService {
	return &authService{cfg: cfg}
}

// IssueToken 校验账号密钥并签发令牌对
func (s *authService) IssueToken(req *dto.TokenRequest) (*dto.TokenResponse, error) {
	account, ok := s.findAccount(req.Account)
	if !ok {
		return nil, pkgErrors.ErrInvalidCredentials
	}
	if !crypto.CheckPassword(req.Secret, account.SecretHash) {
		return nil, pkgErrors.ErrInvalidCredentials
	}
	return s.issueFor(account.Name, account.Role)
}

// RefreshToken 用刷新令牌换发新令牌对
func (s *authService) RefreshToken(refreshToken string) (*dto.TokenResponse, error) {
	claims, err := jwt.ValidateToken(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Type != constants.JWTTypeRefresh {
		return nil, pkgErrors.New(pkgErrors.CodeUnauthorized, "不是刷新令牌")
	}

	// 账号可能已从配置中移除, 换发前重新确认
	account, ok := s.findAccount(claims.Account)
	if !ok {
		return nil, pkgErrors.ErrAccountDisabled
	}
	return s.issueFor(account.Name, account.Role)
}

// VerifyToken 验证访问令牌并还原账号信息
func (s *authService) VerifyToken(token string) (*dto.AccountInfo, error) {
	claims, err := jwt.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != constants.JWTTypeAccess {
		return nil, pkgErrors.ErrInvalidToken
	}
	return &dto.AccountInfo{
		Account: claims.Account,
		Role:    claims.Role,
	}, nil
}

func (s *authService) findAccount(name string) (config.AccountConfig, bool) {
	return lo.Find(s.cfg.Accounts, func(a config.AccountConfig) bool {
		return a.Name == name
	})
}

func (s *authService) issueFor(account, role string) (*dto.TokenResponse, error) {
	accessToken, err := jwt.GenerateAccessToken(account, role)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "生成AccessToken失败", err)
	}
	refreshToken, err := jwt.GenerateRefreshToken(account, role)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "生成RefreshToken失败", err)
	}
	return &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.cfg.JWT.AccessTokenExpire),
	}, nil
}
