// ABOUTME: Assistant gateway orchestrating summary, history, model call and persistence per turn
// ABOUTME: Per-user cache lock spans a turn; history replay is single-flighted per session

package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/kisanmitra/kisanmitra-gateway/internal/cache"
	"github.com/kisanmitra/kisanmitra-gateway/internal/llm"
	"github.com/kisanmitra/kisanmitra-gateway/internal/store"
)

// ErrEmptyMessage is returned for a turn with no input text.
var ErrEmptyMessage = errors.New("message is required")

// MemoryStore is the durable conversation memory the gateway needs.
type MemoryStore interface {
	AppendTurn(ctx context.Context, userID, sessionID, human, assistant string) error
	History(ctx context.Context, userID, sessionID string) ([]store.ChatMessage, error)
	GetSummary(ctx context.Context, userID string) (string, error)
	PutSummary(ctx context.Context, userID, summary string) error
}

// Recorder receives turn outcomes.
type Recorder interface {
	AssistantTurn(mode, outcome string)
	SummaryRefreshFailed()
}

// Turn is one farmer message.
type Turn struct {
	UserID    string
	SessionID string // generated when empty
	Input     string
}

// Reply is the result of a completed turn.
type Reply struct {
	SessionID string
	Text      string
}

// Gateway runs chat turns.
type Gateway struct {
	memory   MemoryStore
	model    llm.ChatModel
	cache    cache.Cache
	flight   singleflight.Group
	recorder Recorder
	logger   *slog.Logger

	summaryTimeout time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRecorder reports turn outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(g *Gateway) {
		g.recorder = r
	}
}

// WithSummaryTimeout bounds the summary refresh call.
func WithSummaryTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.summaryTimeout = d
		}
	}
}

// New creates a Gateway.
func New(memory MemoryStore, model llm.ChatModel, c cache.Cache, logger *slog.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		memory:         memory,
		model:          model,
		cache:          c,
		logger:         logger.With("component", "assistant"),
		summaryTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

const (
	modeBlocking = "blocking"
	modeStream   = "stream"
)

// Complete runs a turn with a single blocking model call.
func (g *Gateway) Complete(ctx context.Context, turn Turn) (*Reply, error) {
	return g.run(ctx, turn, modeBlocking, func(ctx context.Context, prompt []llm.Message) (string, error) {
		return g.model.Complete(ctx, prompt)
	})
}

// Stream runs a turn with an incremental model call. Fragments reach onChunk
// in generation order. The turn is recorded only after the stream drains; a
// ctx cancelled mid-generation or an onChunk error aborts it without
// recording anything.
func (g *Gateway) Stream(ctx context.Context, turn Turn, onChunk llm.ChunkFunc) (*Reply, error) {
	return g.run(ctx, turn, modeStream, func(ctx context.Context, prompt []llm.Message) (string, error) {
		return g.model.Stream(ctx, prompt, onChunk)
	})
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

type invokeFunc func(ctx context.Context, prompt []llm.Message) (string, error)

func (g *Gateway) run(ctx context.Context, turn Turn, mode string, invoke invokeFunc) (reply *Reply, err error) {
	defer func() {
		g.record(mode, err)
	}()

	if strings.TrimSpace(turn.Input) == "" {
		return nil, ErrEmptyMessage
	}
	if turn.UserID == "" {
		return nil, errors.New("user id is required")
	}
	if turn.SessionID == "" {
		turn.SessionID = NewSessionID()
	}

	unlock, err := g.cache.Lock(ctx, lockKey(turn.UserID))
	if err != nil {
		return nil, fmt.Errorf("acquiring turn lock: %w", err)
	}
	defer unlock()

	summary, err := g.summary(ctx, turn.UserID)
	if err != nil {
		return nil, err
	}

	history, err := g.history(ctx, turn.UserID, turn.SessionID)
	if err != nil {
		return nil, err
	}

	prompt := buildPrompt(summary, history, turn.Input)

	text, err := invoke(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("invoking model: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("invoking model: %w: empty reply", llm.ErrUpstreamModel)
	}

	// The reply is complete; record it even if the caller goes away now.
	persistCtx := context.WithoutCancel(ctx)
	if err := g.memory.AppendTurn(persistCtx, turn.UserID, turn.SessionID, turn.Input, text); err != nil {
		return nil, fmt.Errorf("recording turn: %w", err)
	}

	now := time.Now().UTC()
	history = append(history,
		store.ChatMessage{Role: store.ChatRoleHuman, Text: turn.Input, Timestamp: now},
		store.ChatMessage{Role: store.ChatRoleAssistant, Text: text, Timestamp: now},
	)
	if err := g.putHistory(persistCtx, turn.UserID, turn.SessionID, history); err != nil {
		g.logger.Warn("history cache update failed", "session_id", turn.SessionID, "error", err)
		g.dropHistory(persistCtx, turn.UserID, turn.SessionID)
	}

	g.refreshSummary(persistCtx, turn.UserID, summary, turn.Input, text)

	g.logger.Debug("turn completed",
		"user_id", turn.UserID,
		"session_id", turn.SessionID,
		"mode", mode,
		"history_len", len(history))

	return &Reply{SessionID: turn.SessionID, Text: text}, nil
}

func (g *Gateway) record(mode string, err error) {
	if g.recorder == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
	default:
		outcome = "error"
	}
	g.recorder.AssistantTurn(mode, outcome)
}

// summary returns the cached rolling summary, loading it from the store on a miss.
func (g *Gateway) summary(ctx context.Context, userID string) (string, error) {
	data, ok, err := g.cache.Get(ctx, summaryKey(userID))
	if err != nil {
		g.logger.Warn("summary cache read failed", "user_id", userID, "error", err)
	} else if ok {
		return string(data), nil
	}

	summary, err := g.memory.GetSummary(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("loading summary: %w", err)
	}
	if err := g.cache.Put(ctx, summaryKey(userID), []byte(summary)); err != nil {
		g.logger.Warn("summary cache write failed", "user_id", userID, "error", err)
	}
	return summary, nil
}

type cachedMessage struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"ts"`
}

// history returns the session history, replaying it from the store into the
// cache at most once per session when absent.
func (g *Gateway) history(ctx context.Context, userID, sessionID string) ([]store.ChatMessage, error) {
	key := historyKey(userID, sessionID)
	if msgs, ok := g.cachedHistory(ctx, key); ok {
		return msgs, nil
	}

	v, err, _ := g.flight.Do(key, func() (any, error) {
		if msgs, ok := g.cachedHistory(ctx, key); ok {
			return msgs, nil
		}
		msgs, err := g.memory.History(ctx, userID, sessionID)
		if err != nil {
			return nil, fmt.Errorf("loading history: %w", err)
		}
		if err := g.putHistory(ctx, userID, sessionID, msgs); err != nil {
			g.logger.Warn("history cache write failed", "session_id", sessionID, "error", err)
		}
		return msgs, nil
	})
	if err != nil {
		return nil, err
	}

	// Callers append to the result; never share the backing array.
	shared := v.([]store.ChatMessage)
	out := make([]store.ChatMessage, len(shared))
	copy(out, shared)
	return out, nil
}

func (g *Gateway) cachedHistory(ctx context.Context, key string) ([]store.ChatMessage, bool) {
	data, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		g.logger.Warn("history cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var cached []cachedMessage
	if err := json.Unmarshal(data, &cached); err != nil {
		g.logger.Warn("discarding corrupt history cache entry", "key", key, "error", err)
		return nil, false
	}
	msgs := make([]store.ChatMessage, len(cached))
	for i, m := range cached {
		msgs[i] = store.ChatMessage{Role: m.Role, Text: m.Text, Timestamp: m.Timestamp}
	}
	return msgs, true
}

func (g *Gateway) putHistory(ctx context.Context, userID, sessionID string, msgs []store.ChatMessage) error {
	cached := make([]cachedMessage, len(msgs))
	for i, m := range msgs {
		cached[i] = cachedMessage{Role: m.Role, Text: m.Text, Timestamp: m.Timestamp}
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return err
	}
	return g.cache.Put(ctx, historyKey(userID, sessionID), data)
}

// dropHistory removes a stale entry so the next turn replays from the store.
func (g *Gateway) dropHistory(ctx context.Context, userID, sessionID string) {
	if err := g.cache.Delete(ctx, historyKey(userID, sessionID)); err != nil {
		g.logger.Error("could not invalidate history cache", "session_id", sessionID, "error", err)
	}
}

// refreshSummary folds the exchange into the rolling summary. Failures keep
// the prior summary.
func (g *Gateway) refreshSummary(ctx context.Context, userID, old, input, reply string) {
	ctx, cancel := context.WithTimeout(ctx, g.summaryTimeout)
	defer cancel()

	updated, err := g.model.Complete(ctx, summaryPrompt(old, input, reply))
	if err == nil && strings.TrimSpace(updated) == "" {
		err = errors.New("model returned an empty summary")
	}
	if err == nil {
		err = g.memory.PutSummary(ctx, userID, updated)
	}
	if err != nil {
		g.logger.Warn("summary refresh failed, keeping prior summary", "user_id", userID, "error", err)
		if g.recorder != nil {
			g.recorder.SummaryRefreshFailed()
		}
		return
	}

	// The store now holds the newer summary; a cached copy must not outlive it.
	if err := g.cache.Put(ctx, summaryKey(userID), []byte(updated)); err != nil {
		g.logger.Warn("summary cache write failed", "user_id", userID, "error", err)
		if err := g.cache.Delete(ctx, summaryKey(userID)); err != nil {
			g.logger.Error("could not invalidate summary cache", "user_id", userID, "error", err)
		}
	}
}

func lockKey(userID string) string               { return "turn:" + userID }
func summaryKey(userID string) string            { return "summary:" + userID }
func historyKey(userID, sessionID string) string { return "history:" + userID + ":" + sessionID }
