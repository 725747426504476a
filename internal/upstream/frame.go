// Package upstream adapts non-OpenAI providers onto the proxy's uniform
// downstream wire format: each client here translates a ChatRequest into
// the provider's native request shape, and translates native stream
// events back into OpenAI-compatible chunk JSON before handing them to
// the sse bus, so the downstream client sees the same schema regardless
// of which upstream actually produced it.
package upstream

import "encoding/json"

type openAIDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type openAIChoice struct {
	Index        int         `json:"index"`
	Delta        openAIDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason,omitempty"`
}

// openAIChunk is the OpenAI streaming chunk schema from the data model's
// StreamFrame: {id, object, created, model, choices}.
type openAIChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
}

func marshalChunk(c openAIChunk) []byte {
	out, err := json.Marshal(c)
	if err != nil {
		// openAIChunk has no types that can fail to marshal (no channels,
		// funcs, or cyclic pointers), so this path is unreachable.
		return []byte(`{}`)
	}
	return out
}
