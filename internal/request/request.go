// Package request defines the chat-completion request shape and the raw
// JSON parser that produces it. Unknown top-level fields are preserved so
// they can be re-emitted verbatim on the way upstream.
package request

import (
	"encoding/json"

	"github.com/fenwick-labs/llmproxy/internal/perr"
)

// FunctionCall is the name/arguments pair attached to a Message when the
// assistant invokes a function.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FunctionDef describes a callable function offered to the model.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Message is one entry in a ChatRequest's conversation history.
type Message struct {
	Role         string        `json:"role"`
	Content      string        `json:"content,omitempty"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// knownFields lists the JSON keys of the modeled fields (the tags on
// chatRequestWire) so custom (un)marshaling can tell a known field from
// one that belongs in Additional.
var knownFields = map[string]bool{
	"model":       true,
	"messages":    true,
	"stream":      true,
	"max_tokens":  true,
	"temperature": true,
	"functions":   true,
}

// ChatRequest is the typed, provider-agnostic chat-completion request.
// Fields the proxy doesn't model are kept in Additional and re-emitted
// at the top level when the request is marshaled back to JSON, so
// upstream-specific parameters survive the round trip untouched.
type ChatRequest struct {
	Model       string         `json:"-"`
	Messages    []Message      `json:"-"`
	Stream      bool           `json:"-"`
	MaxTokens   *int           `json:"-"`
	Temperature *float64       `json:"-"`
	Functions   []FunctionDef  `json:"-"`
	Additional  map[string]any `json:"-"`
}

// chatRequestWire is the subset of ChatRequest with real JSON tags, used
// as the target/source for the known fields during (un)marshaling.
type chatRequestWire struct {
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Functions   []FunctionDef `json:"functions,omitempty"`
}

// UnmarshalJSON decodes the known fields normally and stashes everything
// else in Additional.
func (c *ChatRequest) UnmarshalJSON(data []byte) error {
	var wire chatRequestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	additional := make(map[string]any, len(raw))
	for k, v := range raw {
		if knownFields[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		additional[k] = val
	}

	c.Model = wire.Model
	c.Messages = wire.Messages
	c.Stream = wire.Stream
	c.MaxTokens = wire.MaxTokens
	c.Temperature = wire.Temperature
	c.Functions = wire.Functions
	c.Additional = additional
	return nil
}

// MarshalJSON re-emits the known fields alongside Additional at the top
// level, so unrecognized upstream-specific parameters pass through.
func (c ChatRequest) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Additional)+6)
	for k, v := range c.Additional {
		out[k] = v
	}
	out["model"] = c.Model
	out["messages"] = c.Messages
	out["stream"] = c.Stream
	if c.MaxTokens != nil {
		out["max_tokens"] = *c.MaxTokens
	}
	if c.Temperature != nil {
		out["temperature"] = *c.Temperature
	}
	if len(c.Functions) > 0 {
		out["functions"] = c.Functions
	}
	return json.Marshal(out)
}

// Parse decodes a raw JSON body into a ChatRequest. The only mandated
// encoding is JSON; no business validation is performed beyond that —
// the upstream provider is the authority on whether the request is
// otherwise acceptable.
func Parse(raw []byte) (*ChatRequest, error) {
	var req ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, perr.Parse(err, "decoding chat completion request")
	}
	return &req, nil
}
