// ABOUTME: Gemini adapter built on google.golang.org/genai
// ABOUTME: Serves chat turns and JSON-mode generation for result enrichment

package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiModel calls the Gemini generateContent API.
type GeminiModel struct {
	client      *genai.Client
	model       string
	temperature float32
}

// GeminiOptions configures a GeminiModel.
type GeminiOptions struct {
	APIKey      string
	Model       string
	BaseURL     string // empty for the public endpoint
	Temperature float32
	HTTPClient  *http.Client
}

// NewGeminiModel creates a Gemini adapter.
func NewGeminiModel(ctx context.Context, opts GeminiOptions) (*GeminiModel, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}
	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiModel{client: client, model: model, temperature: opts.Temperature}, nil
}

// Provider implements ChatModel.
func (m *GeminiModel) Provider() string { return "gemini" }

// convert splits system messages into the system instruction and maps the
// assistant role to Gemini's "model" role.
func (m *GeminiModel) convert(messages []Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	temperature := m.temperature
	config := &genai.GenerateContentConfig{Temperature: &temperature}

	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, config
}

// Complete implements ChatModel.
func (m *GeminiModel) Complete(ctx context.Context, messages []Message) (string, error) {
	contents, config := m.convert(messages)
	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, config)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: gemini generate: %v", ErrUpstreamModel, err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", ErrUpstreamModel)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: gemini returned an empty reply (finish reason %q)", ErrUpstreamModel, resp.Candidates[0].FinishReason)
	}
	return text, nil
}

// Stream implements ChatModel.
func (m *GeminiModel) Stream(ctx context.Context, messages []Message, onChunk ChunkFunc) (string, error) {
	contents, config := m.convert(messages)

	var full strings.Builder
	for resp, err := range m.client.Models.GenerateContentStream(ctx, m.model, contents, config) {
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w: gemini stream: %v", ErrUpstreamModel, err)
		}
		fragment := resp.Text()
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
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if strings.TrimSpace(full.String()) == "" {
		return "", fmt.Errorf("%w: gemini stream produced no text", ErrUpstreamModel)
	}
	return full.String(), nil
}

// GenerateJSON sends a single user prompt with the JSON response MIME type
// and returns the text of the first candidate.
func (m *GeminiModel) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, config)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: gemini generate: %v", ErrUpstreamModel, err)
	}
	return resp.Text(), nil
}

var (
	_ ChatModel     = (*GeminiModel)(nil)
	_ JSONGenerator = (*GeminiModel)(nil)
)
