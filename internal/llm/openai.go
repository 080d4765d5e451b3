// ABOUTME: OpenAI-compatible chat model adapter built on go-openai
// ABOUTME: Supports blocking completions and SSE streaming with a custom base URL

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIModel calls an OpenAI-compatible chat completion endpoint.
type OpenAIModel struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIModel creates an adapter for model. An empty baseURL uses the
// public OpenAI endpoint.
func NewOpenAIModel(apiKey, baseURL, model string, temperature float32) *OpenAIModel {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIModel{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
	}
}

// Provider implements ChatModel.
func (m *OpenAIModel) Provider() string { return "openai" }

func (m *OpenAIModel) request(messages []Message, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: m.temperature,
		Stream:      stream,
	}
	// go-openai drops a zero temperature from the payload.
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return req
}

// Complete implements ChatModel.
func (m *OpenAIModel) Complete(ctx context.Context, messages []Message) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, m.request(messages, false))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: openai completion: %v", ErrUpstreamModel, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", ErrUpstreamModel)
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: openai returned an empty reply (finish reason %q)", ErrUpstreamModel, resp.Choices[0].FinishReason)
	}
	return text, nil
}

// Stream implements ChatModel.
func (m *OpenAIModel) Stream(ctx context.Context, messages []Message, onChunk ChunkFunc) (string, error) {
	stream, err := m.client.CreateChatCompletionStream(ctx, m.request(messages, true))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: openai stream: %v", ErrUpstreamModel, err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			if strings.TrimSpace(full.String()) == "" {
				return "", fmt.Errorf("%w: openai stream produced no text", ErrUpstreamModel)
			}
			return full.String(), nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w: openai stream: %v", ErrUpstreamModel, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		fragment := resp.Choices[0].Delta.Content
		if fragment == "" {
			continue
		}
		full.WriteString(fragment)
		if onChunk != nil {
			if err := onChunk(fragment); err != nil {
				return "", err
			}
		}
	}
}

var _ ChatModel = (*OpenAIModel)(nil)
