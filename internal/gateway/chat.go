// ABOUTME: Assistant chat handlers: blocking reply, SSE streaming and history reads
// ABOUTME: The chat user is always the authenticated principal, never a body field

package gateway

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kisanmitra/kisanmitra-gateway/internal/assistant"
	"github.com/kisanmitra/kisanmitra-gateway/internal/auth"
	"github.com/kisanmitra/kisanmitra-gateway/internal/llm"
	"github.com/kisanmitra/kisanmitra-gateway/internal/store"
)

// ChatRequest is the JSON body for POST /chat and POST /chat/stream.
type ChatRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
	Message   string `json:"message" validate:"max=8000"`
}

// ChatResponse is returned by POST /chat.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

// ChatMessageResponse is one entry of a session history.
type ChatMessageResponse struct {
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	HTML      string    `json:"html,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// chatErrorStatus maps an assistant error to a status and client message.
func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, assistant.ErrEmptyMessage):
		return http.StatusUnprocessableEntity, "message is required"
	case errors.Is(err, llm.ErrUpstreamModel):
		return http.StatusBadGateway, "the assistant is unavailable, please try again"
	case errors.Is(err, store.ErrPersistence):
		return http.StatusInternalServerError, "failed to save the conversation"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeRequest(w, r, &req); err != nil {
		g.writeDecodeError(w, err)
		return
	}

	caller := auth.MustFromContext(r.Context())
	reply, err := g.assistant.Complete(r.Context(), assistant.Turn{
		UserID:    caller.UserKey(),
		SessionID: req.SessionID,
		Input:     req.Message,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			g.logger.Info("chat request canceled by client", "user_id", caller.PrincipalID)
			return
		}
		status, msg := chatErrorStatus(err)
		if status >= http.StatusInternalServerError {
			g.logger.Error("chat turn failed", "user_id", caller.PrincipalID, "error", err)
		}
		g.sendJSONError(w, status, msg)
		return
	}

	g.sendJSON(w, http.StatusOK, ChatResponse{SessionID: reply.SessionID, Reply: reply.Text})
}

// handleChatStream runs a turn and relays fragments as SSE events:
// started, chunk (repeated), then done or error.
func (g *Gateway) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeRequest(w, r, &req); err != nil {
		g.writeDecodeError(w, err)
		return
	}
	// Once the stream starts the status is fixed at 200, so reject here.
	if strings.TrimSpace(req.Message) == "" {
		status, msg := chatErrorStatus(assistant.ErrEmptyMessage)
		g.sendJSONError(w, status, msg)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	caller := auth.MustFromContext(r.Context())
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = assistant.NewSessionID()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := g.writeSSEEvent(w, "started", map[string]string{"session_id": sessionID}); err != nil {
		return
	}
	flusher.Flush()

	reply, err := g.assistant.Stream(r.Context(), assistant.Turn{
		UserID:    caller.UserKey(),
		SessionID: sessionID,
		Input:     req.Message,
	}, func(text string) error {
		if err := g.writeSSEEvent(w, "chunk", map[string]string{"text": text}); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if r.Context().Err() != nil {
			g.logger.Info("chat stream closed by client", "user_id", caller.PrincipalID, "session_id", sessionID)
			return
		}
		status, msg := chatErrorStatus(err)
		if status >= http.StatusInternalServerError {
			g.logger.Error("chat stream failed", "user_id", caller.PrincipalID, "session_id", sessionID, "error", err)
		}
		_ = g.writeSSEEvent(w, "error", map[string]string{"error": msg})
		flusher.Flush()
		return
	}

	_ = g.writeSSEEvent(w, "done", map[string]string{
		"session_id": reply.SessionID,
		"reply":      reply.Text,
	})
	flusher.Flush()
}

func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	sessions, err := g.chat.Sessions(r.Context(), caller.UserKey())
	if err != nil {
		g.logger.Error("failed to list chat sessions", "user_id", caller.PrincipalID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if sessions == nil {
		sessions = []string{}
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleSessionHistory returns a session's messages in order. With
// ?render=html assistant messages also carry Markdown rendered to HTML.
func (g *Gateway) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	sessionID := r.PathValue("id")

	msgs, err := g.chat.History(r.Context(), caller.UserKey(), sessionID)
	if err != nil {
		g.logger.Error("failed to load chat history", "user_id", caller.PrincipalID, "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if len(msgs) == 0 {
		g.sendJSONError(w, http.StatusNotFound, "Session not found")
		return
	}

	render := r.URL.Query().Get("render") == "html"
	out := make([]ChatMessageResponse, 0, len(msgs))
	for _, m := range msgs {
		entry := ChatMessageResponse{Role: m.Role, Message: m.Text, Timestamp: m.Timestamp}
		if render && m.Role == store.ChatRoleAssistant {
			entry.HTML = g.renderMarkdown(m.Text)
		}
		out = append(out, entry)
	}
	g.sendJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   out,
	})
}

// renderMarkdown converts text to HTML, falling back to the raw text.
func (g *Gateway) renderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := g.markdown.Convert([]byte(text), &buf); err != nil {
		g.logger.Warn("markdown render failed", "error", err)
		return text
	}
	return buf.String()
}
