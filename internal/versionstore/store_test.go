package versionstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/pkg/constants"
)

func record(requestID string, targetID int64, version, outcome string) *model.DeploymentRecord {
	return &model.DeploymentRecord{
		RequestID:        requestID,
		TargetID:         targetID,
		TargetName:       "t",
		AttemptedVersion: version,
		ArtifactRef:      "s3://artifacts/app-" + version + ".tgz",
		Outcome:          outcome,
		StartedAt:        time.Now(),
		FinishedAt:       time.Now(),
	}
}

func TestLastSuccessIgnoresLaterFailures(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Append(record("req-1", 1, "v1", constants.OutcomeSuccess)))
	require.NoError(t, store.Append(record("req-2", 1, "v2", constants.OutcomeFailedHealthCheck)))
	require.NoError(t, store.Append(record("req-3", 1, "v3", constants.OutcomeTimedOut)))

	// 失败记录不影响回滚锚点
	last, ok, err := store.LastSuccess(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", last.AttemptedVersion)
	require.Equal(t, "s3://artifacts/app-v1.tgz", last.ArtifactRef)

	// 新的成功记录接管锚点
	require.NoError(t, store.Append(record("req-4", 1, "v4", constants.OutcomeSuccess)))
	last, _, err = store.LastSuccess(1)
	require.NoError(t, err)
	require.Equal(t, "v4", last.AttemptedVersion)
}

func TestLastSuccessNoHistory(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Append(record("req-1", 2, "v1", constants.OutcomeFailedHealthCheck)))

	_, ok, err := store.LastSuccess(2)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListByRequest(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Append(record("req-1", 1, "v2", constants.OutcomeFailedHealthCheck)))
	require.NoError(t, store.Append(record("req-1", 1, "v1", constants.OutcomeSuccess)))
	require.NoError(t, store.Append(record("req-2", 2, "v2", constants.OutcomeSuccess)))

	records, err := store.ListByRequest("req-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, constants.OutcomeFailedHealthCheck, records[0].Outcome)
	require.Equal(t, constants.OutcomeSuccess, records[1].Outcome)
}
