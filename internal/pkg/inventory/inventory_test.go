package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeInventory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValid(t *testing.T) {
	path := writeInventory(t, `
targets:
  - name: web-blue-1
    address: 10.0.0.1:8080
    group: web
    pool: blue
    labels:
      zone: cn-east-1a
  - name: api-1
    address: 10.0.1.1:8080
    group: api
`)

	specs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	require.Equal(t, "web-blue-1", specs[0].Name)
	require.Equal(t, "blue", specs[0].Pool)
	require.Equal(t, "cn-east-1a", specs[0].Labels["zone"])
	require.Empty(t, specs[1].Pool)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nosuch.yaml"))
	require.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeInventory(t, "targets: [unclosed")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"缺少name": `
targets:
  - address: 10.0.0.1:8080
    group: web
`,
		"缺少address": `
targets:
  - name: web-1
    group: web
`,
		"名称重复": `
targets:
  - name: web-1
    address: 10.0.0.1:8080
  - name: web-1
    address: 10.0.0.2:8080
`,
		"非法pool": `
targets:
  - name: web-1
    address: 10.0.0.1:8080
    pool: purple
`,
	}

	for name, content := range cases {
		_, err := Load(writeInventory(t, content))
		require.Error(t, err, name)
	}
}
