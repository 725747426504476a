// Package processor defines the ordered request-transformation hook. No
// concrete processor kinds ship here — callers register whatever
// augmentation (prompt decoration, budgeting, logging) their deployment
// needs.
package processor

import (
	"context"

	"github.com/fenwick-labs/llmproxy/internal/perr"
	"github.com/fenwick-labs/llmproxy/internal/request"
)

// Processor transforms a ChatRequest, optionally suspending (e.g. to call
// out to a moderation service or a budget tracker).
type Processor interface {
	Process(ctx context.Context, req *request.ChatRequest) (*request.ChatRequest, error)
}

// Chain runs a fixed, ordered list of Processors. Each receives the
// prior's output; an error aborts the chain immediately, before any
// upstream call is made.
type Chain struct {
	processors []Processor
}

// NewChain builds a chain that executes processors in the given order.
func NewChain(processors ...Processor) *Chain {
	return &Chain{processors: processors}
}

// Execute runs the chain sequentially. Execution stays sequential even
// when a processor does I/O — ordering matters more than parallelism for
// augmentation steps like this.
func (c *Chain) Execute(ctx context.Context, req *request.ChatRequest) (*request.ChatRequest, error) {
	current := req
	for _, p := range c.processors {
		next, err := p.Process(ctx, current)
		if err != nil {
			return nil, perr.Process(err, "processor chain aborted")
		}
		current = next
	}
	return current, nil
}
