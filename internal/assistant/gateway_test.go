// ABOUTME: Tests for chat turn orchestration, persistence ordering and summary refresh
// ABOUTME: Uses a scripted fake model, an in-memory memory store and the memory cache

package assistant

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kisanmitra/kisanmitra-gateway/internal/cache"
	"github.com/kisanmitra/kisanmitra-gateway/internal/llm"
	"github.com/kisanmitra/kisanmitra-gateway/internal/store"
)

// fakeModel answers chat prompts with reply and summary prompts with summary.
type fakeModel struct {
	mu          sync.Mutex
	prompts     [][]llm.Message
	reply       string
	fragments   []string
	chatErr     error
	summary     func(n int) (string, error)
	summaryCall int
	block       chan struct{}
}

func (f *fakeModel) isSummary(msgs []llm.Message) bool {
	return len(msgs) > 0 && strings.HasPrefix(msgs[0].Content, "You are a summarizer")
}

func (f *fakeModel) Complete(ctx context.Context, msgs []llm.Message) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, msgs)
	if f.isSummary(msgs) {
		f.summaryCall++
		n := f.summaryCall
		f.mu.Unlock()
		if f.summary == nil {
			return "Farmer summary v" + string(rune('0'+n)), nil
		}
		return f.summary(n)
	}
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.reply, nil
}

func (f *fakeModel) Stream(ctx context.Context, msgs []llm.Message, onChunk llm.ChunkFunc) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, msgs)
	f.mu.Unlock()
	if f.chatErr != nil {
		return "", f.chatErr
	}
	var full strings.Builder
	for _, frag := range f.fragments {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		full.WriteString(frag)
		if err := onChunk(frag); err != nil {
			return "", err
		}
	}
	return full.String(), nil
}

func (f *fakeModel) Provider() string { return "fake" }

func (f *fakeModel) chatPrompts() [][]llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]llm.Message
	for _, p := range f.prompts {
		if !f.isSummary(p) {
			out = append(out, p)
		}
	}
	return out
}

// fakeMemory is an in-memory MemoryStore that counts history loads.
type fakeMemory struct {
	mu          sync.Mutex
	logs        map[string][]store.ChatMessage
	summaries   map[string]string
	historyHits atomic.Int32
	appendErr   error
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{logs: map[string][]store.ChatMessage{}, summaries: map[string]string{}}
}

func (m *fakeMemory) AppendTurn(_ context.Context, userID, sessionID, human, assistant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	k := userID + "/" + sessionID
	now := time.Now()
	m.logs[k] = append(m.logs[k],
		store.ChatMessage{Role: store.ChatRoleHuman, Text: human, Timestamp: now},
		store.ChatMessage{Role: store.ChatRoleAssistant, Text: assistant, Timestamp: now})
	return nil
}

func (m *fakeMemory) History(_ context.Context, userID, sessionID string) ([]store.ChatMessage, error) {
	m.historyHits.Add(1)
	time.Sleep(5 * time.Millisecond)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.ChatMessage, len(m.logs[userID+"/"+sessionID]))
	copy(out, m.logs[userID+"/"+sessionID])
	return out, nil
}

func (m *fakeMemory) GetSummary(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaries[userID], nil
}

func (m *fakeMemory) PutSummary(_ context.Context, userID, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[userID] = summary
	return nil
}

func (m *fakeMemory) log(userID, sessionID string) []store.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logs[userID+"/"+sessionID]
}

type countingRecorder struct {
	mu       sync.Mutex
	turns    map[string]int
	failures int
}

func (r *countingRecorder) AssistantTurn(mode, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.turns == nil {
		r.turns = map[string]int{}
	}
	r.turns[mode+"/"+outcome]++
}

func (r *countingRecorder) SummaryRefreshFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
}

func newTestCache(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.New(cache.DriverMemory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGateway_WheatScenario(t *testing.T) {
	chat, err := store.NewSQLiteChatStore(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = chat.Close() })

	model := &fakeModel{reply: "Sow wheat in early November."}
	g := New(chat, model, newTestCache(t), nil)
	ctx := context.Background()

	reply, err := g.Complete(ctx, Turn{UserID: "1", SessionID: "s1", Input: "When should I plant wheat?"})
	require.NoError(t, err)
	assert.Equal(t, "s1", reply.SessionID)
	assert.Equal(t, "Sow wheat in early November.", reply.Text)

	history, err := chat.History(ctx, "1", "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, store.ChatRoleHuman, history[0].Role)
	assert.Equal(t, "When should I plant wheat?", history[0].Text)
	assert.Equal(t, store.ChatRoleAssistant, history[1].Role)

	model.reply = "Irrigate 20 days after sowing."
	_, err = g.Complete(ctx, Turn{UserID: "1", SessionID: "s1", Input: "And irrigation?"})
	require.NoError(t, err)

	history, err = chat.History(ctx, "1", "s1")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "When should I plant wheat?", history[0].Text)
	assert.Equal(t, "Sow wheat in early November.", history[1].Text)
	assert.Equal(t, "And irrigation?", history[2].Text)
	assert.Equal(t, "Irrigate 20 days after sowing.", history[3].Text)

	summary, err := chat.GetSummary(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Farmer summary v2", summary)
}

func TestGateway_PromptOrder(t *testing.T) {
	mem := newFakeMemory()
	mem.summaries["7"] = "Grows cotton in Wardha."
	require.NoError(t, mem.AppendTurn(context.Background(), "7", "s", "hello", "hi"))

	model := &fakeModel{reply: "ok"}
	g := New(mem, model, newTestCache(t), nil)

	_, err := g.Complete(context.Background(), Turn{UserID: "7", SessionID: "s", Input: "pest advice?"})
	require.NoError(t, err)

	prompts := model.chatPrompts()
	require.Len(t, prompts, 1)
	p := prompts[0]
	require.Len(t, p, 4)
	assert.Equal(t, llm.RoleSystem, p[0].Role)
	assert.Contains(t, p[0].Content, "Grows cotton in Wardha.")
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "hello"}, p[1])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "hi"}, p[2])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "pest advice?"}, p[3])
}

func TestGateway_NoSummarySentinel(t *testing.T) {
	model := &fakeModel{reply: "ok"}
	g := New(newFakeMemory(), model, newTestCache(t), nil)

	_, err := g.Complete(context.Background(), Turn{UserID: "1", SessionID: "s", Input: "hi"})
	require.NoError(t, err)

	system := model.chatPrompts()[0][0].Content
	assert.Contains(t, system, "\n\nNo summary yet.\n\n")
	assert.True(t, strings.HasPrefix(system, "You are a farmer assistant."))
}

func TestGateway_SummaryPromptCarriesExchange(t *testing.T) {
	mem := newFakeMemory()
	mem.summaries["1"] = "old facts"
	model := &fakeModel{reply: "Use neem oil."}
	g := New(mem, model, newTestCache(t), nil)

	_, err := g.Complete(context.Background(), Turn{UserID: "1", SessionID: "s", Input: "aphids on mustard"})
	require.NoError(t, err)

	var summaryPrompt []llm.Message
	for _, p := range model.prompts {
		if model.isSummary(p) {
			summaryPrompt = p
		}
	}
	require.Len(t, summaryPrompt, 2)
	assert.Equal(t,
		"Current summary:\nold facts\n\nNew snippet:\nFarmer: aphids on mustard\nAssistant: Use neem oil.",
		summaryPrompt[1].Content)
}

func TestGateway_SummaryFailureKeepsPrior(t *testing.T) {
	mem := newFakeMemory()
	mem.summaries["1"] = "prior summary"
	rec := &countingRecorder{}
	model := &fakeModel{
		reply:   "answer",
		summary: func(int) (string, error) { return "", errors.New("quota exceeded") },
	}
	g := New(mem, model, newTestCache(t), nil, WithRecorder(rec))

	reply, err := g.Complete(context.Background(), Turn{UserID: "1", SessionID: "s", Input: "q"})
	require.NoError(t, err)
	assert.Equal(t, "answer", reply.Text)

	assert.Equal(t, "prior summary", mem.summaries["1"])
	assert.Len(t, mem.log("1", "s"), 2)
	assert.Equal(t, 1, rec.failures)
	assert.Equal(t, 1, rec.turns["blocking/ok"])
}

func TestGateway_EmptySummaryReplyKeepsPrior(t *testing.T) {
	mem := newFakeMemory()
	mem.summaries["1"] = "prior"
	model := &fakeModel{reply: "answer", summary: func(int) (string, error) { return "  ", nil }}
	g := New(mem, model, newTestCache(t), nil)

	_, err := g.Complete(context.Background(), Turn{UserID: "1", SessionID: "s", Input: "q"})
	require.NoError(t, err)
	assert.Equal(t, "prior", mem.summaries["1"])
}

func TestGateway_SummaryChangesEachTurn(t *testing.T) {
	mem := newFakeMemory()
	model := &fakeModel{reply: "answer"}
	g := New(mem, model, newTestCache(t), nil)

	var prev string
	for i := 0; i < 3; i++ {
		_, err := g.Complete(context.Background(), Turn{UserID: "1", SessionID: "s", Input: "q"})
		require.NoError(t, err)
		cur := mem.summaries["1"]
		assert.NotEmpty(t, cur)
		assert.NotEqual(t, prev, cur)
		prev = cur
	}
}

func TestGateway_ModelFailureRecordsNothing(t *testing.T) {
	mem := newFakeMemory()
	rec := &countingRecorder{}
	model := &fakeModel{chatErr: llm.ErrUpstreamModel}
	g := New(mem, model, newTestCache(t), nil, WithRecorder(rec))

	_, err := g.Complete(context.Background(), Turn{UserID: "1", SessionID: "s", Input: "q"})
	require.ErrorIs(t, err, llm.ErrUpstreamModel)
	assert.Empty(t, mem.log("1", "s"))
	assert.Empty(t, mem.summaries)
	assert.Equal(t, 1, rec.turns["blocking/error"])

	_, err = g.Stream(context.Background(), Turn{UserID: "1", SessionID: "s", Input: "q"}, func(string) error { return nil })
	require.ErrorIs(t, err, llm.ErrUpstreamModel)
	assert.Empty(t, mem.log("1", "s"))
}

func TestGateway_PersistenceFailure(t *testing.T) {
	mem := newFakeMemory()
	mem.appendErr = store.ErrPersistence
	model := &fakeModel{reply: "answer"}
	g := New(mem, model, newTestCache(t), nil)

	_, err := g.Complete(context.Background(), Turn{UserID: "1", SessionID: "s", Input: "q"})
	assert.ErrorIs(t, err, store.ErrPersistence)
	assert.Empty(t, mem.summaries)
}

func TestGateway_Stream(t *testing.T) {
	mem := newFakeMemory()
	model := &fakeModel{fragments: []string{"Apply ", "DAP ", "at sowing."}}
	g := New(mem, model, newTestCache(t), nil)

	var got []string
	reply, err := g.Stream(context.Background(), Turn{UserID: "1", SessionID: "s", Input: "fertilizer?"}, func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Apply ", "DAP ", "at sowing."}, got)
	assert.Equal(t, "Apply DAP at sowing.", reply.Text)

	log := mem.log("1", "s")
	require.Len(t, log, 2)
	assert.Equal(t, "Apply DAP at sowing.", log[1].Text)
}

func TestGateway_StreamAbortedByClient(t *testing.T) {
	mem := newFakeMemory()
	model := &fakeModel{fragments: []string{"one", "two", "three"}}
	g := New(mem, model, newTestCache(t), nil)

	gone := errors.New("client disconnected")
	_, err := g.Stream(context.Background(), Turn{UserID: "1", SessionID: "s", Input: "q"}, func(s string) error {
		if s == "two" {
			return gone
		}
		return nil
	})
	require.ErrorIs(t, err, gone)
	assert.Empty(t, mem.log("1", "s"))
	assert.Empty(t, mem.summaries)
}

func TestGateway_CancelledTurnRecordsNothing(t *testing.T) {
	mem := newFakeMemory()
	model := &fakeModel{reply: "late", block: make(chan struct{})}
	g := New(mem, model, newTestCache(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.Complete(ctx, Turn{UserID: "1", SessionID: "s", Input: "q"})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not return after cancel")
	}
	assert.Empty(t, mem.log("1", "s"))
}

func TestGateway_GeneratesSessionID(t *testing.T) {
	g := New(newFakeMemory(), &fakeModel{reply: "ok"}, newTestCache(t), nil)

	reply, err := g.Complete(context.Background(), Turn{UserID: "1", Input: "hi"})
	require.NoError(t, err)
	assert.Len(t, reply.SessionID, 36)
}

func TestGateway_RejectsEmptyInput(t *testing.T) {
	g := New(newFakeMemory(), &fakeModel{reply: "ok"}, newTestCache(t), nil)

	_, err := g.Complete(context.Background(), Turn{UserID: "1", SessionID: "s", Input: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestGateway_HistoryReplayedOnce(t *testing.T) {
	mem := newFakeMemory()
	require.NoError(t, mem.AppendTurn(context.Background(), "1", "s", "earlier", "reply"))
	g := New(mem, &fakeModel{reply: "ok"}, newTestCache(t), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.history(context.Background(), "1", "s")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), mem.historyHits.Load())

	for i := 0; i < 3; i++ {
		_, err := g.Complete(context.Background(), Turn{UserID: "1", SessionID: "s", Input: "again"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), mem.historyHits.Load())
	assert.Len(t, mem.log("1", "s"), 8)
}

func TestGateway_ConcurrentTurnsSameSession(t *testing.T) {
	mem := newFakeMemory()
	model := &fakeModel{reply: "ok"}
	g := New(mem, model, newTestCache(t), nil)

	const turns = 6
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Complete(context.Background(), Turn{UserID: "1", SessionID: "s", Input: "q"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	log := mem.log("1", "s")
	require.Len(t, log, 2*turns)
	for i, m := range log {
		want := store.ChatRoleHuman
		if i%2 == 1 {
			want = store.ChatRoleAssistant
		}
		assert.Equal(t, want, m.Role)
	}

	// Each turn saw every earlier exchange.
	lengths := map[int]bool{}
	for _, p := range model.chatPrompts() {
		lengths[len(p)] = true
	}
	for i := 0; i < turns; i++ {
		assert.True(t, lengths[2+2*i], "missing prompt with %d prior turns", i)
	}
}

func TestGateway_SessionsIsolatedPerUser(t *testing.T) {
	mem := newFakeMemory()
	model := &fakeModel{reply: "ok"}
	g := New(mem, model, newTestCache(t), nil)

	_, err := g.Complete(context.Background(), Turn{UserID: "1", SessionID: "shared", Input: "user one"})
	require.NoError(t, err)
	_, err = g.Complete(context.Background(), Turn{UserID: "2", SessionID: "shared", Input: "user two"})
	require.NoError(t, err)

	prompts := model.chatPrompts()
	require.Len(t, prompts, 2)
	assert.Len(t, prompts[1], 2, "second user must not see the first user's history")
}

// finishThenCancel completes the reply and only then loses its caller.
type finishThenCancel struct {
	fakeModel
	cancel context.CancelFunc
}

func (f *finishThenCancel) Complete(ctx context.Context, msgs []llm.Message) (string, error) {
	if f.isSummary(msgs) {
		return f.fakeModel.Complete(ctx, msgs)
	}
	f.cancel()
	return "full reply", nil
}

func TestGateway_CallerGoneAfterReplyStillRecords(t *testing.T) {
	mem := newFakeMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	model := &finishThenCancel{cancel: cancel}
	g := New(mem, model, newTestCache(t), nil)

	reply, err := g.Complete(ctx, Turn{UserID: "1", SessionID: "s", Input: "q"})
	require.NoError(t, err)
	assert.Equal(t, "full reply", reply.Text)

	log := mem.log("1", "s")
	require.Len(t, log, 2)
	assert.Equal(t, "full reply", log[1].Text)
	assert.Equal(t, "Farmer summary v1", mem.summaries["1"])
}

func TestGateway_EmptyReplyIsUpstreamError(t *testing.T) {
	mem := newFakeMemory()
	rec := &countingRecorder{}
	g := New(mem, &fakeModel{reply: "  "}, newTestCache(t), nil, WithRecorder(rec))

	_, err := g.Complete(context.Background(), Turn{UserID: "1", SessionID: "s", Input: "q"})
	require.ErrorIs(t, err, llm.ErrUpstreamModel)

	_, err = g.Stream(context.Background(), Turn{UserID: "1", SessionID: "s", Input: "q"}, func(string) error { return nil })
	require.ErrorIs(t, err, llm.ErrUpstreamModel)

	assert.Empty(t, mem.log("1", "s"))
	assert.Empty(t, mem.summaries)
	assert.Equal(t, 1, rec.turns["blocking/error"])
	assert.Equal(t, 1, rec.turns["stream/error"])
}

// summaryPutFailer rejects writes of summary keys while failing is set.
type summaryPutFailer struct {
	cache.Cache
	failing atomic.Bool
}

func (c *summaryPutFailer) Put(ctx context.Context, key string, value []byte) error {
	if c.failing.Load() && strings.HasPrefix(key, "summary:") {
		return errors.New("connection reset")
	}
	return c.Cache.Put(ctx, key, value)
}

func TestGateway_SummaryCacheWriteFailureInvalidates(t *testing.T) {
	mem := newFakeMemory()
	model := &fakeModel{reply: "ok"}
	c := &summaryPutFailer{Cache: newTestCache(t)}
	g := New(mem, model, c, nil)
	ctx := context.Background()

	_, err := g.Complete(ctx, Turn{UserID: "1", SessionID: "s", Input: "first"})
	require.NoError(t, err)

	c.failing.Store(true)
	_, err = g.Complete(ctx, Turn{UserID: "1", SessionID: "s", Input: "second"})
	require.NoError(t, err)
	assert.Equal(t, "Farmer summary v2", mem.summaries["1"])

	_, ok, err := c.Get(ctx, "summary:1")
	require.NoError(t, err)
	assert.False(t, ok, "stale summary left in cache")

	c.failing.Store(false)
	_, err = g.Complete(ctx, Turn{UserID: "1", SessionID: "s", Input: "third"})
	require.NoError(t, err)

	prompts := model.chatPrompts()
	require.Len(t, prompts, 3)
	assert.Contains(t, prompts[2][0].Content, "Farmer summary v2")
}
