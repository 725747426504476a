package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fenwick-labs/llmproxy/internal/llm"
	"github.com/fenwick-labs/llmproxy/internal/perr"
	"github.com/fenwick-labs/llmproxy/internal/providers"
	"github.com/fenwick-labs/llmproxy/internal/request"
	"github.com/fenwick-labs/llmproxy/internal/sse"
)

// anthropicAPIVersion pins the Anthropic API behavior; required on every
// request to their Messages API.
const anthropicAPIVersion = "2023-06-01"

// anthropicDefaultMaxTokens is used when the caller doesn't specify
// max_tokens — Anthropic requires the field, unlike OpenAI.
const anthropicDefaultMaxTokens = 1024

// AnthropicClient translates ChatRequests into Anthropic's Messages API
// shape and translates the named SSE event stream back into
// OpenAI-compatible chunks.
type AnthropicClient struct {
	ClientProvider providers.ClientProvider
	TokenProvider  providers.TokenProvider
	URLProvider    providers.URLProvider
}

var _ llm.Executor = (*AnthropicClient)(nil)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream,omitempty"`
}

// anthropicStreamEvent is a wrapper decoded first to dispatch on Type;
// only the fields relevant to that event type are populated.
type anthropicStreamEvent struct {
	Type    string                 `json:"type"`
	Message *anthropicEventMessage `json:"message,omitempty"`
	Delta   *anthropicEventDelta   `json:"delta,omitempty"`
	Usage   *anthropicUsage        `json:"usage,omitempty"`
}

type anthropicEventMessage struct {
	ID    string         `json:"id"`
	Model string         `json:"model"`
	Usage anthropicUsage `json:"usage"`
}

type anthropicEventDelta struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// toAnthropicRequest pulls system messages into the top-level "system"
// string and applies the default max_tokens Anthropic requires.
func toAnthropicRequest(req *request.ChatRequest) *anthropicRequest {
	ar := &anthropicRequest{Model: req.Model}

	var systemParts []string
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		ar.Messages = append(ar.Messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}
	if len(systemParts) > 0 {
		ar.System = strings.Join(systemParts, "\n")
	}

	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		ar.MaxTokens = *req.MaxTokens
	} else {
		ar.MaxTokens = anthropicDefaultMaxTokens
	}
	return ar
}

// Execute authenticates to Anthropic's Messages API and streams back
// OpenAI-shaped chunks. Non-streaming requests hit the same endpoint
// with stream=false and get their content-block response translated
// into a single synthesized Chunk.
func (a *AnthropicClient) Execute(ctx context.Context, req *request.ChatRequest) (<-chan sse.Message, error) {
	httpClient, err := a.ClientProvider.Client(ctx)
	if err != nil {
		return nil, perr.LLM(err, "fetching http client")
	}
	token, err := a.TokenProvider.Token(ctx)
	if err != nil {
		return nil, perr.LLM(err, "fetching anthropic token")
	}
	baseURL, err := a.URLProvider.URL(ctx)
	if err != nil {
		return nil, perr.LLM(err, "fetching anthropic url")
	}

	ar := toAnthropicRequest(req)
	ar.Stream = req.Stream

	body, err := json.Marshal(ar)
	if err != nil {
		return nil, perr.LLM(err, "serializing anthropic request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, perr.LLM(err, "building anthropic request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", token)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, perr.LLM(err, "sending request to anthropic")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, perr.LLM(nil, "%s", anthropicErrorMessage(resp))
	}

	ch := make(chan sse.Message, llm.ChannelCapacity)
	if req.Stream {
		go readAnthropicStream(ctx, resp.Body, ch)
	} else {
		go readAnthropicNonStreaming(resp.Body, req.Model, ch)
	}
	return ch, nil
}

func anthropicErrorMessage(resp *http.Response) string {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "<unreadable body>"
	}
	var envelope anthropicErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Message == "" {
		return strings.TrimSpace(string(raw))
	}
	return envelope.Error.Message
}

// anthropicContentBlock and anthropicResponse model the non-streaming
// /v1/messages response shape.
type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

func readAnthropicNonStreaming(body io.ReadCloser, model string, ch chan<- sse.Message) {
	defer close(ch)
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		ch <- sse.ErrorMessage(perr.Frame(err, "reading anthropic response body"))
		return
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		ch <- sse.ErrorMessage(perr.Frame(err, "decoding anthropic response"))
		return
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	finish := "stop"
	chunk := openAIChunk{
		ID:      resp.ID,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []openAIChoice{{Index: 0, Delta: openAIDelta{Role: "assistant", Content: text}, FinishReason: &finish}},
	}
	ch <- sse.ChunkMessage(marshalChunk(chunk))
}

func readAnthropicStream(ctx context.Context, body io.ReadCloser, ch chan<- sse.Message) {
	defer close(ch)
	defer body.Close()

	var (
		decoder sse.LineDecoder
		respID  string
		model   string
	)
	buf := make([]byte, 32*1024)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, value := range decoder.Feed(buf[:n]) {
				var event anthropicStreamEvent
				if err := json.Unmarshal([]byte(value), &event); err != nil {
					if !send(ctx, ch, sse.ErrorMessage(perr.Frame(err, "decoding anthropic stream event"))) {
						return
					}
					continue
				}

				switch event.Type {
				case "message_start":
					if event.Message != nil {
						respID = event.Message.ID
						model = event.Message.Model
					}
				case "content_block_delta":
					if event.Delta == nil {
						continue
					}
					chunk := openAIChunk{
						ID:      respID,
						Object:  "chat.completion.chunk",
						Created: time.Now().Unix(),
						Model:   model,
						Choices: []openAIChoice{{Index: 0, Delta: openAIDelta{Content: event.Delta.Text}}},
					}
					if !send(ctx, ch, sse.ChunkMessage(marshalChunk(chunk))) {
						return
					}
				case "message_stop":
					if !send(ctx, ch, sse.DoneMessage()) {
						return
					}
					return
				}
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				return
			}
			send(ctx, ch, sse.ErrorMessage(perr.Frame(readErr, "reading anthropic stream")))
			return
		}
	}
}

func send(ctx context.Context, ch chan<- sse.Message, msg sse.Message) bool {
	select {
	case ch <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
