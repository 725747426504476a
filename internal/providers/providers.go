// Package providers supplies the per-call credential, endpoint, and
// transport capabilities the upstream client needs. Each capability is a
// single-method interface so implementations compose by construction
// rather than inheritance.
package providers

import (
	"context"
	"net/http"
	"os"

	"github.com/fenwick-labs/llmproxy/internal/perr"
)

const userAgent = "llm-proxy-openai"

// TokenProvider yields a bearer token for an upstream call. Tokens are
// never logged.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// URLProvider yields the fully-qualified upstream endpoint.
type URLProvider interface {
	URL(ctx context.Context) (string, error)
}

// ClientProvider yields a configured HTTP client, safe for concurrent use.
type ClientProvider interface {
	Client(ctx context.Context) (*http.Client, error)
}

// StaticToken returns a fixed, constructor-bound token.
type StaticToken struct{ value string }

// NewStaticToken binds value as the token returned on every call.
func NewStaticToken(value string) StaticToken { return StaticToken{value: value} }

// Token implements TokenProvider.
func (t StaticToken) Token(context.Context) (string, error) { return t.value, nil }

// EnvToken reads its token from an environment variable on every call, so
// rotated credentials take effect without a restart.
type EnvToken struct{ envVar string }

// NewEnvToken binds the environment variable name to read from.
func NewEnvToken(envVar string) EnvToken { return EnvToken{envVar: envVar} }

// Token implements TokenProvider. Fails with a ConfigError if the
// variable is unset or empty.
func (t EnvToken) Token(context.Context) (string, error) {
	v := os.Getenv(t.envVar)
	if v == "" {
		return "", perr.Config(nil, "environment variable %q is not set", t.envVar)
	}
	return v, nil
}

// StaticURL returns a fixed, constructor-bound endpoint.
type StaticURL struct{ value string }

// NewStaticURL binds value as the URL returned on every call.
func NewStaticURL(value string) StaticURL { return StaticURL{value: value} }

// URL implements URLProvider.
func (u StaticURL) URL(context.Context) (string, error) {
	if u.value == "" {
		return "", perr.Config(nil, "upstream base_url is empty")
	}
	return u.value, nil
}

// StaticClient returns a fixed, constructor-bound HTTP client.
type StaticClient struct{ client *http.Client }

// NewStaticClient wraps an already-configured client. If client is nil, a
// default client with sane pooling defaults is built.
func NewStaticClient(client *http.Client) StaticClient {
	if client == nil {
		client = NewDefaultClient()
	}
	return StaticClient{client: client}
}

// Client implements ClientProvider.
func (c StaticClient) Client(context.Context) (*http.Client, error) {
	if c.client == nil {
		return nil, perr.Config(nil, "no http client configured")
	}
	return c.client, nil
}

// userAgentTransport stamps every outgoing request with the proxy's
// user-agent without requiring callers to set it themselves.
type userAgentTransport struct {
	base http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", userAgent)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// NewDefaultClient builds the default HTTP client (the one the pipeline
// registry shares across every backend, and the one NewStaticClient uses
// when given nil): pooled connections and the proxy's user-agent. It sets no Timeout: a streaming chat completion
// can legitimately run far longer than any fixed wall-clock budget, and
// http.Client.Timeout applies to the whole response body read, not just
// connection setup. Cancellation comes from the request's context.
func NewDefaultClient() *http.Client {
	return &http.Client{
		Transport: userAgentTransport{base: http.DefaultTransport},
	}
}
