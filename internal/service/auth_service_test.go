package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"deploy-orchestrator/internal/dto"
	"deploy-orchestrator/internal/pkg/config"
	"deploy-orchestrator/internal/pkg/crypto"
	pkgErrors "deploy-orchestrator/pkg/errors"
)

func newAuthFixture(t *testing.T) AuthService {
	t.Helper()

	hash, err := crypto.HashPassword("ci-secret")
	require.NoError(t, err)

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWT: config.JWTConfig{
				Secret:             "test-jwt-secret-for-unit-tests",
				AccessTokenExpire:  3600,
				RefreshTokenExpire: 86400,
			},
			Accounts: []config.AccountConfig{
				{Name: "ci-pipeline", SecretHash: hash, Role: "deployer"},
			},
		},
	}
	config.GlobalConfig = cfg
	return NewAuthService(&cfg.Auth)
}

func TestIssueTokenAndVerify(t *testing.T) {
	svc := newAuthFixture(t)

	resp, err := svc.IssueToken(&dto.TokenRequest{Account: "ci-pipeline", Secret: "ci-secret"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, int64(3600), resp.ExpiresIn)

	info, err := svc.VerifyToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "ci-pipeline", info.Account)
	require.Equal(t, "deployer", info.Role)
}

func TestIssueTokenBadCredentials(t *testing.T) {
	svc := newAuthFixture(t)

	_, err := svc.IssueToken(&dto.TokenRequest{Account: "ci-pipeline", Secret: "wrong"})
	require.ErrorIs(t, err, pkgErrors.ErrInvalidCredentials)

	_, err = svc.IssueToken(&dto.TokenRequest{Account: "nobody", Secret: "ci-secret"})
	require.ErrorIs(t, err, pkgErrors.ErrInvalidCredentials)
}

func TestVerifyRejectsRefreshToken(t *testing.T) {
	svc := newAuthFixture(t)

	resp, err := svc.IssueToken(&dto.TokenRequest{Account: "ci-pipeline", Secret: "ci-secret"})
	require.NoError(t, err)

	// 令牌类型不能混用
	_, err = svc.VerifyToken(resp.RefreshToken)
	require.Error(t, err)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	svc := newAuthFixture(t)

	resp, err := svc.IssueToken(&dto.TokenRequest{Account: "ci-pipeline", Secret: "ci-secret"})
	require.NoError(t, err)

	renewed, err := svc.RefreshToken(resp.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, renewed.AccessToken)

	// 访问令牌不能用来换发
	_, err = svc.RefreshToken(resp.AccessToken)
	require.Error(t, err)
}

func TestRefreshTokenAccountRemoved(t *testing.T) {
	svc := newAuthFixture(t)

	resp, err := svc.IssueToken(&dto.TokenRequest{Account: "ci-pipeline", Secret: "ci-secret"})
	require.NoError(t, err)

	// 账号从配置移除后刷新令牌失效
	config.GlobalConfig.Auth.Accounts = nil
	_, err = svc.RefreshToken(resp.RefreshToken)
	require.ErrorIs(t, err, pkgErrors.ErrAccountDisabled)
}
