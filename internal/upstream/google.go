package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
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

// GoogleClient translates ChatRequests into Gemini's generateContent
// shape and translates the response stream back into OpenAI-compatible
// chunks. The API key travels as a query parameter, per Gemini's API;
// TokenProvider still supplies it so credential sourcing stays uniform
// across providers.
type GoogleClient struct {
	ClientProvider providers.ClientProvider
	TokenProvider  providers.TokenProvider
	URLProvider    providers.URLProvider
}

var _ llm.Executor = (*GoogleClient)(nil)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata"`
}

// toGeminiRequest pulls system messages into systemInstruction, maps the
// "assistant" role to Gemini's "model", and moves max_tokens into
// generationConfig.
func toGeminiRequest(req *request.ChatRequest) *geminiRequest {
	gr := &geminiRequest{}

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			if gr.SystemInstruction == nil {
				gr.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: msg.Content}}}
			} else {
				gr.SystemInstruction.Parts = append(gr.SystemInstruction.Parts, geminiPart{Text: msg.Content})
			}
			continue
		}

		role := msg.Role
		if role == "assistant" {
			role = "model"
		}
		gr.Contents = append(gr.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: msg.Content}}})
	}

	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		gr.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: *req.MaxTokens}
	}
	return gr
}

// Execute authenticates to Gemini's generateContent/streamGenerateContent
// endpoints and streams back OpenAI-shaped chunks.
func (g *GoogleClient) Execute(ctx context.Context, req *request.ChatRequest) (<-chan sse.Message, error) {
	httpClient, err := g.ClientProvider.Client(ctx)
	if err != nil {
		return nil, perr.LLM(err, "fetching http client")
	}
	apiKey, err := g.TokenProvider.Token(ctx)
	if err != nil {
		return nil, perr.LLM(err, "fetching google api key")
	}
	baseURL, err := g.URLProvider.URL(ctx)
	if err != nil {
		return nil, perr.LLM(err, "fetching google url")
	}

	gr := toGeminiRequest(req)
	body, err := json.Marshal(gr)
	if err != nil {
		return nil, perr.LLM(err, "serializing gemini request")
	}

	var url string
	if req.Stream {
		url = fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", strings.TrimRight(baseURL, "/"), req.Model, apiKey)
	} else {
		url = fmt.Sprintf("%s/models/%s:generateContent?key=%s", strings.TrimRight(baseURL, "/"), req.Model, apiKey)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, perr.LLM(err, "building gemini request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, perr.LLM(err, "sending request to gemini")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return nil, perr.LLM(nil, "%s (%d)", strings.TrimSpace(string(raw)), resp.StatusCode)
	}

	ch := make(chan sse.Message, llm.ChannelCapacity)
	if req.Stream {
		go readGeminiStream(ctx, resp.Body, req.Model, ch)
	} else {
		go readGeminiNonStreaming(resp.Body, req.Model, ch)
	}
	return ch, nil
}

func toOpenAIChunk(model string, resp geminiResponse, forceFinish bool) (openAIChunk, bool) {
	if len(resp.Candidates) == 0 {
		return openAIChunk{}, false
	}
	candidate := resp.Candidates[0]

	var text string
	if len(candidate.Content.Parts) > 0 {
		text = candidate.Content.Parts[0].Text
	}

	choice := openAIChoice{Index: 0, Delta: openAIDelta{Content: text}}
	if candidate.FinishReason != "" || forceFinish {
		finish := "stop"
		choice.FinishReason = &finish
	}

	return openAIChunk{
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []openAIChoice{choice},
	}, true
}

func readGeminiNonStreaming(body io.ReadCloser, model string, ch chan<- sse.Message) {
	defer close(ch)
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		ch <- sse.ErrorMessage(perr.Frame(err, "reading gemini response body"))
		return
	}

	var resp geminiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		ch <- sse.ErrorMessage(perr.Frame(err, "decoding gemini response"))
		return
	}

	chunk, ok := toOpenAIChunk(model, resp, true)
	if !ok {
		ch <- sse.ErrorMessage(perr.Frame(nil, "gemini returned no candidates"))
		return
	}
	ch <- sse.ChunkMessage(marshalChunk(chunk))
}

func readGeminiStream(ctx context.Context, body io.ReadCloser, model string, ch chan<- sse.Message) {
	defer close(ch)
	defer body.Close()

	var decoder sse.LineDecoder
	buf := make([]byte, 32*1024)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, value := range decoder.Feed(buf[:n]) {
				var resp geminiResponse
				if err := json.Unmarshal([]byte(value), &resp); err != nil {
					if !send(ctx, ch, sse.ErrorMessage(perr.Frame(err, "decoding gemini stream event"))) {
						return
					}
					continue
				}

				chunk, ok := toOpenAIChunk(model, resp, false)
				if !ok {
					continue
				}

				finished := len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != ""
				if !send(ctx, ch, sse.ChunkMessage(marshalChunk(chunk))) {
					return
				}
				if finished {
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
			send(ctx, ch, sse.ErrorMessage(perr.Frame(readErr, "reading gemini stream")))
			return
		}
	}
}
