package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  addr: ":8080"
db:
  dsn: "postgres://gw:gw@localhost:5432/gw"
gateway:
  secret: "zzz"
  callback_base_url: "https://gw.example/handle-payment"
  required_confirmations: 6
address:
  mode: remote
  api_base_urls:
    - "https://api.blockchain.example"
  api_key: "api-key-1"
  xpub: "xpub-test"
  gap_limit: 20
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, int64(6), cfg.Gateway.RequiredConfirmations)
	assert.Equal(t, "remote", cfg.Address.Mode)
	assert.Equal(t, 20, cfg.Address.GapLimit)
	assert.Equal(t, 3, cfg.Address.FailoverThreshold)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GATEWAY_SECRET", "env-secret")
	t.Setenv("ADDRESS_API_BASE_URLS", "https://a.example, https://b.example")
	t.Setenv("GATEWAY_ALLOW_LATE_UPDATES", "true")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Gateway.Secret)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Address.APIBaseURLs)
	assert.True(t, cfg.Gateway.AllowLateUpdates)
}

func TestLoadRejectsIncompleteConfig(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  addr: \":8080\"\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, `
server:
  addr: ":8080"
db:
  dsn: "postgres://gw:gw@localhost:5432/gw"
gateway:
  secret: "zzz"
  callback_base_url: "https://gw.example/handle-payment"
address:
  mode: remote
  xpub: "xpub-test"
`))
	require.Error(t, err)
}

func TestLoadLocalModeDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  addr: ":8080"
db:
  dsn: "postgres://gw:gw@localhost:5432/gw"
gateway:
  secret: "zzz"
  callback_base_url: "https://gw.example/handle-payment"
address:
  mode: local
  xpub: "xpub-test"
`))
	require.NoError(t, err)
	assert.Equal(t, "bc", cfg.Address.HRP)
	assert.Equal(t, int64(3), cfg.Gateway.RequiredConfirmations)
}
