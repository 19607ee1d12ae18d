package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("TEST_DOUBAO_KEY", "sk-test")

	dir := t.TempDir()
	path := filepath.Join(dir, "agentd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
logging:
  level: debug
llms:
  doubao:
    type: openai
    base_url: ${TEST_DOUBAO_BASE:-https://ark.example.com/api/v3}
    api_key: ${TEST_DOUBAO_KEY}
flows:
  dir: config/flows
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "simple", cfg.Logging.Format)

	doubao := cfg.LLMs["doubao"]
	// ${VAR:-default} falls back when unset; ${VAR} expands.
	assert.Equal(t, "https://ark.example.com/api/v3", doubao.BaseURL)
	assert.Equal(t, "sk-test", doubao.APIKey)
	assert.Equal(t, 4096, doubao.MaxTokens)

	// Flows defaults derive from the dir.
	assert.Equal(t, "config/flows/flow_rule", cfg.Flows.RuleDir)
	assert.Equal(t, "config/flow_loader.yaml", cfg.Flows.LoaderPath)
}

func TestLoad_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: loud
`), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
