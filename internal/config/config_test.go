package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, EngineModePlan, cfg.Engine.Mode)
	assert.Equal(t, 30*time.Second, cfg.EngineTimeout())
	assert.Equal(t, 2*time.Minute, cfg.LLMTimeout())
	assert.NotEmpty(t, cfg.Store.DatabasePath)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shoptalk.yaml")
	content := `name: teststore
llm:
  provider: openai
  model: gpt-4o-mini
  api_key: file-key
store:
  database_path: /tmp/teststore.db
engine:
  mode: raw
  timeout: 10s
logging:
  debug_mode: true
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "teststore", cfg.Name)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "/tmp/teststore.db", cfg.Store.DatabasePath)
	assert.Equal(t, EngineModeRaw, cfg.Engine.Mode)
	assert.Equal(t, 10*time.Second, cfg.EngineTimeout())
	assert.True(t, cfg.Logging.DebugMode)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shoptalk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: partial\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "partial", cfg.Name)
	assert.Equal(t, "gemini", cfg.LLM.Provider, "unset sections keep defaults")
	assert.Equal(t, EngineModePlan, cfg.Engine.Mode)
}

func TestLoad_EnvOverridesAPIKey(t *testing.T) {
	t.Setenv("SHOPTALK_API_KEY", "env-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.LLM.APIKey)
}

func TestLoad_GeminiKeyFallback(t *testing.T) {
	t.Setenv("SHOPTALK_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "gemini-env-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gemini-env-key", cfg.LLM.APIKey)
}

func TestLoad_EnvOverridesProvider(t *testing.T) {
	t.Setenv("SHOPTALK_PROVIDER", "mock")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.LLM.Provider)
}

func TestLoad_InvalidEngineMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shoptalk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  mode: compiled\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid engine mode")
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shoptalk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [not a map\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
