package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/fenwick-labs/llmproxy/internal/perr"
	"github.com/fenwick-labs/llmproxy/internal/providers"
	"github.com/fenwick-labs/llmproxy/internal/request"
	"github.com/fenwick-labs/llmproxy/internal/sse"
)

// ChannelCapacity bounds the Message channel between the upstream reader
// and the SSE encoder, so a slow downstream consumer stalls the upstream
// read instead of buffering without limit.
const ChannelCapacity = 100

const doneSentinel = "[DONE]"

// Executor runs a processed ChatRequest against some upstream provider
// and returns a channel of decoded Messages. Client is the OpenAI-shaped
// core implementation; the upstream package provides translating
// implementations for other providers.
type Executor interface {
	Execute(ctx context.Context, req *request.ChatRequest) (<-chan sse.Message, error)
}

// Client is the OpenAI-shaped core upstream client: it forwards the
// processed request byte-for-byte and forwards decoded response frames
// byte-for-byte, doing no provider-specific translation.
type Client struct {
	ClientProvider providers.ClientProvider
	TokenProvider  providers.TokenProvider
	URLProvider    providers.URLProvider
}

// upstreamErrorEnvelope is the OpenAI-style error body shape returned on
// non-2xx responses.
type upstreamErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Param   string `json:"param,omitempty"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

// Execute authenticates and forwards req upstream. On success it returns
// a channel the caller reads decoded Messages from; the background
// reader owns the response body and the send end of the channel until it
// returns. On synchronous setup failure (provider lookup, non-2xx
// response) no channel is returned and no Message is ever emitted — the
// caller must surface the error itself.
func (c *Client) Execute(ctx context.Context, req *request.ChatRequest) (<-chan sse.Message, error) {
	httpClient, err := c.ClientProvider.Client(ctx)
	if err != nil {
		return nil, perr.LLM(err, "fetching http client")
	}
	token, err := c.TokenProvider.Token(ctx)
	if err != nil {
		return nil, perr.LLM(err, "fetching upstream token")
	}
	url, err := c.URLProvider.URL(ctx)
	if err != nil {
		return nil, perr.LLM(err, "fetching upstream url")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, perr.LLM(err, "serializing request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, perr.LLM(err, "building upstream request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, perr.LLM(err, "sending request upstream")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, perr.LLM(nil, "%s", upstreamErrorMessage(resp))
	}

	ch := make(chan sse.Message, ChannelCapacity)
	if req.Stream {
		go readStreaming(ctx, resp.Body, ch)
	} else {
		go readNonStreaming(resp.Body, ch)
	}
	return ch, nil
}

// upstreamErrorMessage reads the non-2xx body best-effort and formats it
// as "<message> (<status>)". If the body doesn't match the expected error
// envelope its trimmed raw text stands in for the message; if it can't be
// read at all, a placeholder does.
func upstreamErrorMessage(resp *http.Response) string {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("<unreadable body> (%d)", resp.StatusCode)
	}

	var envelope upstreamErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Message == "" {
		return fmt.Sprintf("%s (%d)", strings.TrimSpace(string(raw)), resp.StatusCode)
	}
	return fmt.Sprintf("%s (%d)", envelope.Error.Message, resp.StatusCode)
}

func readNonStreaming(body io.ReadCloser, ch chan<- sse.Message) {
	defer close(ch)
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		ch <- sse.ErrorMessage(perr.Frame(err, "reading non-streaming response body"))
		return
	}
	ch <- sse.ChunkMessage(raw)
}

// readStreaming owns resp body and the send end of ch until it returns.
// It line-buffers transport chunks into complete SSE data: values,
// forwards each valid JSON payload verbatim, recovers from individual
// malformed frames, and stops immediately if the downstream receiver
// goes away.
func readStreaming(ctx context.Context, body io.ReadCloser, ch chan<- sse.Message) {
	defer close(ch)
	defer body.Close()

	var decoder sse.LineDecoder
	buf := make([]byte, 32*1024)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, value := range decoder.Feed(buf[:n]) {
				if strings.TrimSpace(value) == doneSentinel {
					if !send(ctx, ch, sse.DoneMessage()) {
						log.Printf("llm: downstream receiver dropped before [DONE]; stopping read")
					}
					return
				}

				if !json.Valid([]byte(value)) {
					log.Printf("llm: failed to parse upstream frame; reporting in-band and continuing")
					if !send(ctx, ch, sse.ErrorMessage(perr.Frame(nil, "failed to parse frame: %s", value))) {
						log.Printf("llm: downstream receiver dropped mid-stream; stopping read")
						return
					}
					continue
				}

				if !send(ctx, ch, sse.ChunkMessage([]byte(value))) {
					log.Printf("llm: downstream receiver dropped mid-stream; stopping read")
					return
				}
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				return
			}
			send(ctx, ch, sse.ErrorMessage(perr.Frame(readErr, "error reading chunk")))
			return
		}
	}
}

// send delivers msg, honoring ctx cancellation as the proxy's
// backpressure/cancellation signal. It reports whether the send
// succeeded; a canceled ctx wins even when ch still has room.
func send(ctx context.Context, ch chan<- sse.Message, msg sse.Message) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case ch <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
