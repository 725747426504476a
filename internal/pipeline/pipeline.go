// Package pipeline ties the parser, processor chain, and upstream client
// into the single per-route execution unit, and caches one such unit per
// route prefix.
package pipeline

import (
	"context"
	"log"

	"github.com/fenwick-labs/llmproxy/internal/llm"
	"github.com/fenwick-labs/llmproxy/internal/processor"
	"github.com/fenwick-labs/llmproxy/internal/request"
	"github.com/fenwick-labs/llmproxy/internal/sse"
	"github.com/google/uuid"
)

// Parser matches request.Parse's signature so a Pipeline can be built
// against a fake parser in tests.
type Parser func(raw []byte) (*request.ChatRequest, error)

// Pipeline is parse -> process -> execute -> encode, tagged with a trace
// id generated once at construction and reused for every request it
// serves. It owns no mutable state beyond that id, so it's safe to share
// across concurrent requests.
type Pipeline struct {
	Parser            Parser
	Chain             *processor.Chain
	Executor          llm.Executor
	TraceID           uuid.UUID
	AllowStreaming    bool
	AllowNonStreaming bool
}

// New builds a Pipeline with a freshly generated trace id.
func New(parser Parser, chain *processor.Chain, executor llm.Executor, allowStreaming, allowNonStreaming bool) *Pipeline {
	return &Pipeline{
		Parser:            parser,
		Chain:             chain,
		Executor:          executor,
		TraceID:           uuid.New(),
		AllowStreaming:    allowStreaming,
		AllowNonStreaming: allowNonStreaming,
	}
}

// Execute parses, processes, and forwards raw upstream, returning a
// channel of downstream SSE bytes immediately so the caller can begin
// writing the response while the upstream call is still in flight.
func (p *Pipeline) Execute(ctx context.Context, raw []byte) (<-chan []byte, error) {
	log.Printf("pipeline[%s]: executing request (%d bytes)", p.TraceID, len(raw))

	parsed, err := p.Parser(raw)
	if err != nil {
		return nil, err
	}

	p.enforceStreamingPolicy(parsed)

	processed, err := p.Chain.Execute(ctx, parsed)
	if err != nil {
		return nil, err
	}

	upstreamCh, err := p.Executor.Execute(ctx, processed)
	if err != nil {
		return nil, err
	}

	return sse.Encode(ctx, upstreamCh), nil
}

// enforceStreamingPolicy reconciles the request's stream flag with the
// route's allow_streaming/allow_non_streaming configuration: a
// disallowed mode is forced to the other one and a warning is logged,
// rather than rejecting the request outright.
func (p *Pipeline) enforceStreamingPolicy(req *request.ChatRequest) {
	if req.Stream && !p.AllowStreaming {
		log.Printf("pipeline[%s]: streaming requested but not allowed by route config; forcing non-streaming", p.TraceID)
		req.Stream = false
		return
	}
	if !req.Stream && !p.AllowNonStreaming {
		log.Printf("pipeline[%s]: non-streaming requested but not allowed by route config; forcing streaming", p.TraceID)
		req.Stream = true
	}
}
