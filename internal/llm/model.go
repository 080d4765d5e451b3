// ABOUTME: Chat language-model abstraction used by the assistant gateway
// ABOUTME: Blocking and incremental calls share one message shape across providers

package llm

import (
	"context"
	"errors"
	"time"
)

// ErrUpstreamModel is returned for transport failures, non-success statuses
// and empty or malformed replies from a model endpoint.
var ErrUpstreamModel = errors.New("upstream model error")

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prompt entry.
type Message struct {
	Role    Role
	Content string
}

// ChunkFunc receives streamed text fragments in generation order. Returning
// an error aborts the stream.
type ChunkFunc func(fragment string) error

// ChatModel generates assistant replies.
type ChatModel interface {
	// Complete returns the full reply in one call.
	Complete(ctx context.Context, messages []Message) (string, error)

	// Stream emits fragments as they arrive and returns their concatenation
	// once the stream has been fully drained.
	Stream(ctx context.Context, messages []Message, onChunk ChunkFunc) (string, error)

	// Provider names the backend for logs and metrics.
	Provider() string
}

// Observer records the outcome of each model call.
type Observer interface {
	ModelCall(provider, op, outcome string, elapsed time.Duration)
}

// observedModel decorates a ChatModel with an Observer.
type observedModel struct {
	ChatModel
	obs Observer
}

// Observe wraps model so every call is reported to obs.
func Observe(model ChatModel, obs Observer) ChatModel {
	if obs == nil {
		return model
	}
	return &observedModel{ChatModel: model, obs: obs}
}

func (m *observedModel) Complete(ctx context.Context, messages []Message) (string, error) {
	start := time.Now()
	reply, err := m.ChatModel.Complete(ctx, messages)
	m.obs.ModelCall(m.Provider(), "complete", outcome(err), time.Since(start))
	return reply, err
}

func (m *observedModel) Stream(ctx context.Context, messages []Message, onChunk ChunkFunc) (string, error) {
	start := time.Now()
	reply, err := m.ChatModel.Stream(ctx, messages, onChunk)
	m.obs.ModelCall(m.Provider(), "stream", outcome(err), time.Since(start))
	return reply, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

// JSONGenerator produces JSON-mode replies for a single prompt.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
	Provider() string
}

type observedGenerator struct {
	JSONGenerator
	obs Observer
}

// ObserveJSON wraps gen so every call is reported to obs.
func ObserveJSON(gen JSONGenerator, obs Observer) JSONGenerator {
	if obs == nil {
		return gen
	}
	return &observedGenerator{JSONGenerator: gen, obs: obs}
}

func (g *observedGenerator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := g.JSONGenerator.GenerateJSON(ctx, prompt)
	g.obs.ModelCall(g.Provider(), "generate_json", outcome(err), time.Since(start))
	return text, err
}
