package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deploy-orchestrator/internal/dto"
	"deploy-orchestrator/internal/pkg/config"
)

func TestBuildConfigServerDefaults(t *testing.T) {
	svc := &deploymentService{cfg: &config.Config{}}

	cfg, err := svc.buildConfig(nil)
	require.NoError(t, err)
	require.Equal(t, 1, cfg.BatchSize)
	require.Equal(t, 30*time.Minute, cfg.Timeout)
	require.Equal(t, 10*time.Minute, cfg.RollbackTimeout)
	require.Equal(t, 15*time.Second, cfg.DrainGrace)
	require.Equal(t, defaultCanaryCount, cfg.CanaryCount)
	require.Equal(t, defaultErrorThreshold, cfg.ErrorThreshold)
}

func TestBuildConfigServerConfigWins(t *testing.T) {
	svc := &deploymentService{cfg: &config.Config{
		Engine: config.EngineConfig{
			BatchSize:      4,
			RequestTimeout: "45m",
			DrainGrace:     "5s",
		},
	}}

	cfg, err := svc.buildConfig(nil)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.BatchSize)
	require.Equal(t, 45*time.Minute, cfg.Timeout)
	require.Equal(t, 5*time.Second, cfg.DrainGrace)
}

func TestBuildConfigRequestOverrides(t *testing.T) {
	svc := &deploymentService{cfg: &config.Config{}}

	cfg, err := svc.buildConfig(&dto.DeploymentConfig{
		BatchSize:  2,
		Timeout:    "5m",
		DrainGrace: "1s",
	})
	require.NoError(t, err)
	require.Equal(t, 2, cfg.BatchSize)
	require.Equal(t, 5*time.Minute, cfg.Timeout)
	require.Equal(t, time.Second, cfg.DrainGrace)

	// 坏的时长参数在受理前拒绝
	_, err = svc.buildConfig(&dto.DeploymentConfig{Timeout: "soon"})
	require.Error(t, err)
}
