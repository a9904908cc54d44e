package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	client *openai.Client
	model  string
}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid mutating the original
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

func NewOpenAI(apiKey, baseURL, model, referrer, title string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	// Inject optional headers (useful for OpenRouter)
	if referrer != "" || title != "" {
		h := http.Header{}
		if referrer != "" {
			h.Set("HTTP-Referer", referrer)
		}
		if title != "" {
			h.Set("X-Title", title)
		}
		base := http.DefaultTransport
		config.HTTPClient = &http.Client{Transport: headerTransport{rt: base, headers: h}}
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (c *OpenAIClient) StreamChat(ctx context.Context, messages []Message, tools []Tool) (Stream, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	}

	if len(tools) > 0 {
		var oaTools []openai.Tool
		for _, tool := range tools {
			oaTools = append(oaTools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        tool.Function.Name,
					Description: tool.Function.Description,
					Parameters:  tool.Function.Parameters,
				},
			})
		}
		req.Tools = oaTools
		req.ToolChoice = "auto"
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat completion stream: %w", err)
	}
	return &openAIStream{stream: stream}, nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
	// pending holds chunks decoded from a response that carried more than
	// one payload (e.g. a text delta and a tool-call fragment at once).
	pending []Chunk
}

func (s *openAIStream) Recv() (Chunk, error) {
	for {
		if len(s.pending) > 0 {
			ch := s.pending[0]
			s.pending = s.pending[1:]
			return ch, nil
		}
		resp, err := s.stream.Recv()
		if err != nil {
			return Chunk{}, err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			s.pending = append(s.pending, Chunk{Kind: ChunkText, Text: choice.Delta.Content})
		}
		for _, tc := range choice.Delta.ToolCalls {
			ch := Chunk{
				Kind:     ChunkToolCall,
				ToolID:   tc.ID,
				ToolName: tc.Function.Name,
				ToolArgs: tc.Function.Arguments,
			}
			if tc.Index != nil {
				ch.ToolIndex = *tc.Index
			}
			s.pending = append(s.pending, ch)
		}
		if choice.FinishReason != "" {
			s.pending = append(s.pending, Chunk{Kind: ChunkFinish, FinishReason: string(choice.FinishReason)})
		}
	}
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	var oaMsgs []openai.ChatCompletionMessage
	for _, m := range messages {
		om := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		oaMsgs = append(oaMsgs, om)
	}
	return oaMsgs
}
