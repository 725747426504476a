package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fenwick-labs/llmproxy/internal/config"
	"github.com/fenwick-labs/llmproxy/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleHealth(t *testing.T) {
	cfg := &config.Config{}
	srv := New(cfg, pipeline.NewRegistry(cfg, nil))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleProxy_NoMatchingRoute(t *testing.T) {
	cfg := &config.Config{}
	srv := New(cfg, pipeline.NewRegistry(cfg, nil))

	req := httptest.NewRequest(http.MethodPost, "/unknown", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No route found for path: /unknown")
}

func TestHandleProxy_HappyStreaming(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		w.Write([]byte("data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"he\"}}]}\n\n"))
		flusher.Flush()
		w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
	defer upstream.Close()

	t.Setenv("TEST_PROXY_TOKEN", "sk-test")

	cfg := &config.Config{
		Server: config.ServerConfig{RequestTimeoutSecs: 30},
		LLM: map[string]config.LLMConfig{
			"openai-chat": {Provider: "openai", BaseURL: upstream.URL, TokenEnv: "TEST_PROXY_TOKEN", SupportsStreaming: true},
		},
		Route: []config.RouteConfig{
			{PathPrefix: "/v1/chat/completions", TargetLLM: "openai-chat", AllowStreaming: true, AllowNonStreaming: true},
		},
	}
	srv := New(cfg, pipeline.NewRegistry(cfg, nil))

	body := `{"model":"gpt-4","messages":[{"role":"user","content":"hi"}],"stream":true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"id":"c1"`)
	assert.Contains(t, string(out), "data: [DONE]\n\n")
}

func TestHandleProxy_UnknownLLMBackendReturns500(t *testing.T) {
	cfg := &config.Config{
		Route: []config.RouteConfig{
			{PathPrefix: "/v1/chat/completions", TargetLLM: "missing"},
		},
	}
	srv := New(cfg, pipeline.NewRegistry(cfg, nil))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
