package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/fenwick-labs/llmproxy/internal/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appendSystemMessage is a test-only Processor that prepends a system
// message, standing in for the kind of augmentation a real deployment
// would register.
type appendSystemMessage struct{ content string }

func (p appendSystemMessage) Process(_ context.Context, req *request.ChatRequest) (*request.ChatRequest, error) {
	out := *req
	out.Messages = append([]request.Message{{Role: "system", Content: p.content}}, req.Messages...)
	return &out, nil
}

type failingProcessor struct{}

func (failingProcessor) Process(context.Context, *request.ChatRequest) (*request.ChatRequest, error) {
	return nil, errors.New("rejected")
}

func TestChain_EmptyPassesThrough(t *testing.T) {
	chain := NewChain()
	req := &request.ChatRequest{Model: "gpt-4"}

	out, err := chain.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, req, out)
}

func TestChain_MutatesInOrder(t *testing.T) {
	chain := NewChain(appendSystemMessage{content: "be concise"})
	req := &request.ChatRequest{
		Messages: []request.Message{{Role: "user", Content: "hi"}},
	}

	out, err := chain.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "system", out.Messages[0].Role)
	assert.Equal(t, "be concise", out.Messages[0].Content)
	assert.Equal(t, "user", out.Messages[1].Role)
}

func TestChain_AbortsOnError(t *testing.T) {
	chain := NewChain(appendSystemMessage{content: "first"}, failingProcessor{}, appendSystemMessage{content: "never runs"})
	req := &request.ChatRequest{Messages: []request.Message{{Role: "user", Content: "hi"}}}

	_, err := chain.Execute(context.Background(), req)
	require.Error(t, err)
}
