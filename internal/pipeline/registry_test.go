package pipeline

import (
	"sync"
	"testing"

	"github.com/fenwick-labs/llmproxy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeoutSecs: 30},
		LLM: map[string]config.LLMConfig{
			"openai-chat": {Provider: "openai", BaseURL: "https://api.openai.com/v1/chat/completions", TokenEnv: "TEST_OPENAI_KEY", SupportsStreaming: true},
		},
		Route: []config.RouteConfig{
			{PathPrefix: "/v1/chat/completions", TargetLLM: "openai-chat", AllowStreaming: true, AllowNonStreaming: true},
		},
	}
}

func TestRegistry_GetBuildsAndCaches(t *testing.T) {
	reg := NewRegistry(testConfig(), nil)
	route := &reg.cfg.Route[0]

	p1, err := reg.Get(route)
	require.NoError(t, err)

	p2, err := reg.Get(route)
	require.NoError(t, err)

	assert.Same(t, p1, p2, "registry must return the same cached pipeline")
}

func TestRegistry_UnknownLLMBackend(t *testing.T) {
	reg := NewRegistry(testConfig(), nil)
	route := &config.RouteConfig{PathPrefix: "/x", TargetLLM: "does-not-exist"}

	_, err := reg.Get(route)
	require.Error(t, err)
}

func TestRegistry_UnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.LLM["bad"] = config.LLMConfig{Provider: "unknown-vendor"}
	cfg.Route = append(cfg.Route, config.RouteConfig{PathPrefix: "/bad", TargetLLM: "bad"})
	reg := NewRegistry(cfg, nil)

	_, err := reg.Get(&cfg.Route[1])
	require.Error(t, err)
}

func TestRegistry_ConcurrentMissesProduceAtMostOnePipeline(t *testing.T) {
	reg := NewRegistry(testConfig(), nil)
	route := &reg.cfg.Route[0]

	const n = 50
	results := make([]*Pipeline, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			p, err := reg.Get(route)
			require.NoError(t, err)
			results[i] = p
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i])
	}
}
