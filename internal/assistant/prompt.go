// ABOUTME: Prompt construction for chat turns and rolling summary refreshes
// ABOUTME: Order is fixed: system instruction with summary, replayed history, new input

package assistant

import (
	"fmt"

	"github.com/kisanmitra/kisanmitra-gateway/internal/llm"
	"github.com/kisanmitra/kisanmitra-gateway/internal/store"
)

// NoSummary stands in for a missing rolling summary.
const NoSummary = "No summary yet."

const summarizerInstruction = "You are a summarizer. Read the conversation snippet and update the running summary about the farmer. Always output the full updated summary, not just the new info."

func systemInstruction(summary string) string {
	if summary == "" {
		summary = NoSummary
	}
	return fmt.Sprintf("You are a farmer assistant. Here is the long-term summary about the farmer:\n\n%s\n\nUse this summary to answer queries. Do not invent details.", summary)
}

// buildPrompt assembles the model input for a turn.
func buildPrompt(summary string, history []store.ChatMessage, input string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: systemInstruction(summary)})
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == store.ChatRoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Text})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: input})
}

// summaryPrompt asks the model to fold the latest exchange into the summary.
func summaryPrompt(old, input, reply string) []llm.Message {
	if old == "" {
		old = NoSummary
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: summarizerInstruction},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Current summary:\n%s\n\nNew snippet:\nFarmer: %s\nAssistant: %s", old, input, reply)},
	}
}
