package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllowAdminWildcard(t *testing.T) {
	for _, need := range []Permission{PermDeploySubmit, PermTargetWrite, PermRecordView} {
		require.True(t, Allow([]string{"admin"}, need))
	}
}

func TestAllowDeployerPrefixWildcard(t *testing.T) {
	roles := []string{"deployer"}

	require.True(t, Allow(roles, PermDeploySubmit), "deploy:*覆盖deploy:submit")
	require.True(t, Allow(roles, PermDeployView))
	require.True(t, Allow(roles, PermTargetView))
	require.False(t, Allow(roles, PermTargetWrite))
}

func TestAllowViewerReadOnly(t *testing.T) {
	roles := []string{"viewer"}

	require.True(t, Allow(roles, PermDeployView))
	require.True(t, Allow(roles, PermRecordView))
	require.False(t, Allow(roles, PermDeploySubmit))
	require.False(t, Allow(roles, PermTargetWrite))
}

func TestAllowUnknownRole(t *testing.T) {
	require.False(t, Allow([]string{"intern"}, PermDeployView))
	require.False(t, Allow(nil, PermDeployView))
}

func TestAllowMergesRoles(t *testing.T) {
	roles := []string{"viewer", "deployer"}
	require.True(t, Allow(roles, PermDeploySubmit))
}

func TestMatchParts(t *testing.T) {
	require.True(t, matchParts([]string{"deploy", "*"}, []string{"deploy", "submit"}))
	require.False(t, matchParts([]string{"deploy"}, []string{"deploy", "submit"}), "段数不足且无通配不匹配")
	require.False(t, matchParts([]string{"deploy", "submit", "extra"}, []string{"deploy", "submit"}))
}
