package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalYAML = `
database:
  driver: sqlite
  dsn: "file::memory:"
auth:
  jwt_secret: "0123456789abcdef0123"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "strict", cfg.Engine.DegradeMode)
	assert.Equal(t, 100, cfg.Engine.MaxPageLimit)
	assert.Equal(t, 20, cfg.Engine.DefaultPageLimit)
	assert.Equal(t, 10000, cfg.Engine.ExportLimit)
	assert.True(t, cfg.Engine.StrictTransitions)
	assert.Equal(t, 5*time.Second, cfg.Engine.AdapterTimeout)
	assert.Equal(t, "transactions.moderate", cfg.Notification.Permission)
	assert.Equal(t, 1024, cfg.Audit.QueueSize)
	assert.Equal(t, "none", cfg.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("TXCONSOLE_ENGINE_DEGRADE_MODE", "partial")
	t.Setenv("TXCONSOLE_ENGINE_ADAPTER_TIMEOUT", "750ms")
	t.Setenv("TXCONSOLE_SERVER_PORT", "9090")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "partial", cfg.Engine.DegradeMode)
	assert.Equal(t, 750*time.Millisecond, cfg.Engine.AdapterTimeout)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown degrade mode": minimalYAML + "engine:\n  degrade_mode: lenient\n",
		"short secret": `
database:
  driver: sqlite
  dsn: "file::memory:"
auth:
  jwt_secret: "short"
`,
		"missing dsn": `
database:
  driver: postgres
auth:
  jwt_secret: "0123456789abcdef0123"
`,
		"kafka without brokers": minimalYAML + "kafka:\n  enabled: true\n",
		"redis cache without redis": minimalYAML + "cache:\n  backend: redis\n",
		"unknown cache backend":     minimalYAML + "cache:\n  backend: memcached\n",
		"default limit above max": minimalYAML + "engine:\n  default_page_limit: 500\n  max_page_limit: 100\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestYAMLOmitsSecrets(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "0123456789abcdef0123")
	assert.NotContains(t, string(out), "file::memory:")
	assert.Contains(t, string(out), "degrade_mode: strict")
}
