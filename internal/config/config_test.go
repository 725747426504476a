package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// t.TempDir() gives us a directory that's auto-deleted after the test.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	tomlContent := `
[server]
host = "0.0.0.0"
port = 9090
log_level = "info"
request_timeout_secs = 30
cors_allowed_origins = ["*"]

[llm.openai-chat]
provider = "openai"
type = "chat"
base_url = "https://api.openai.com/v1/chat/completions"
token_env = "TEST_OPENAI_KEY"
supports_streaming = true

[[route]]
path_prefix = "/v1/chat/completions"
target_llm = "openai-chat"
processors = []
allow_streaming = true
allow_non_streaming = true
`
	err := os.WriteFile(configPath, []byte(tomlContent), 0644)
	require.NoError(t, err) // require stops the test immediately if this fails

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSAllowedOrigins)

	llmCfg, ok := cfg.LLM["openai-chat"]
	assert.True(t, ok, "openai-chat backend should exist")
	assert.Equal(t, "openai", llmCfg.Provider)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", llmCfg.BaseURL)
	assert.True(t, llmCfg.SupportsStreaming)

	require.Len(t, cfg.Route, 1)
	assert.Equal(t, "/v1/chat/completions", cfg.Route[0].PathPrefix)
	assert.Equal(t, "openai-chat", cfg.Route[0].TargetLLM)
}

func TestLoadEnvOverride(t *testing.T) {
	// Verify that LLMPROXY_ env vars override TOML values.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	tomlContent := `
[server]
host = "0.0.0.0"
port = 8080
log_level = "info"
request_timeout_secs = 30
cors_allowed_origins = ["*"]
`
	err := os.WriteFile(configPath, []byte(tomlContent), 0644)
	require.NoError(t, err)

	// This should override server.port from 8080 to 3000.
	t.Setenv("LLMPROXY_SERVER_PORT", "3000")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestFindRoute(t *testing.T) {
	cfg := &Config{
		Route: []RouteConfig{
			{PathPrefix: "/v1/chat/completions"},
			{PathPrefix: "/v1"},
		},
	}

	route, ok := cfg.FindRoute("/v1/chat/completions/extra")
	require.True(t, ok)
	assert.Equal(t, "/v1/chat/completions", route.PathPrefix)

	route, ok = cfg.FindRoute("/v1/embeddings")
	require.True(t, ok)
	assert.Equal(t, "/v1", route.PathPrefix)

	_, ok = cfg.FindRoute("/unknown")
	assert.False(t, ok)
}
