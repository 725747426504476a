package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/fenwick-labs/llmproxy/internal/perr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticToken(t *testing.T) {
	tok := NewStaticToken("sk-abc")
	got, err := tok.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-abc", got)
}

func TestEnvToken_Unset(t *testing.T) {
	tok := NewEnvToken("LLMPROXY_TEST_TOKEN_UNSET")
	_, err := tok.Token(context.Background())
	require.Error(t, err)

	var perrErr *perr.Error
	require.True(t, errors.As(err, &perrErr))
	assert.Equal(t, perr.KindConfig, perrErr.Kind)
}

func TestEnvToken_Set(t *testing.T) {
	t.Setenv("LLMPROXY_TEST_TOKEN_SET", "secret-value")
	tok := NewEnvToken("LLMPROXY_TEST_TOKEN_SET")
	got, err := tok.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "secret-value", got)
}

func TestStaticURL_Empty(t *testing.T) {
	u := NewStaticURL("")
	_, err := u.URL(context.Background())
	require.Error(t, err)
}

func TestStaticURL(t *testing.T) {
	u := NewStaticURL("https://api.openai.com/v1/chat/completions")
	got, err := u.URL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", got)
}

func TestStaticClient_Default(t *testing.T) {
	c := NewStaticClient(nil)
	client, err := c.Client(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, client)
}
