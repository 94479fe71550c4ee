package v1

import (
	"context"
	"log/slog"
	"time"

	"github.com/personakit/personakit/plugin/llm"
)

const (
	// recentTurnWindow is how many trailing turns of the conversation are
	// sent verbatim; older turns are dropped here and only reachable
	// through long-term memory.
	recentTurnWindow = 10

	// defaultMemoryTimeout bounds the memory-retrieval call so a slow
	// memory service cannot delay generation start indefinitely.
	defaultMemoryTimeout = 3 * time.Second

	// memoryResultLimit is how many remembered turns are injected.
	memoryResultLimit = 5
)

// TurnInput is one prior message of the conversation as supplied by the
// client.
type TurnInput struct {
	Role    string `json:"role"` // "user" | "assistant"
	Content string `json:"content"`
}

// ContextWindow is the bounded prompt context for one request. It is
// built fresh per request and never mutated afterwards.
type ContextWindow struct {
	MemorySummary string
	RecentTurns   []TurnInput
	NewMessage    string
}

// assembleContext builds the context window: retrieved long-term memory
// plus the recency window over the supplied history. Memory retrieval is
// best-effort; on failure or timeout the window simply carries no memory.
func (s *APIV1Service) assembleContext(ctx context.Context, userID, personaID string, history []TurnInput, newMessage string) *ContextWindow {
	memorySummary := ""
	if s.Memory != nil {
		memoryCtx, cancel := context.WithTimeout(ctx, s.memoryTimeout)
		summary, err := s.Memory.RetrieveMemory(memoryCtx, userID, personaID, newMessage, memoryResultLimit)
		cancel()
		if err != nil {
			slog.Warn("memory retrieval failed, continuing without memory",
				"user", userID, "persona", personaID, "err", err)
		} else {
			memorySummary = summary
		}
	}

	recent := history
	if len(recent) > recentTurnWindow {
		recent = recent[len(recent)-recentTurnWindow:]
	}

	return &ContextWindow{
		MemorySummary: memorySummary,
		RecentTurns:   recent,
		NewMessage:    newMessage,
	}
}

// buildChatMessages flattens a context window into the transcript sent to
// the model: persona instructions (with memory appended), the recency
// window in chronological order, and the new user message last.
func buildChatMessages(persona *Persona, window *ContextWindow) []llm.Message {
	systemText := persona.SystemPrompt
	if window.MemorySummary != "" {
		systemText += "\n\nWhat you remember about this user from earlier conversations:\n" + window.MemorySummary
	}

	messages := make([]llm.Message, 0, len(window.RecentTurns)+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemText})
	for _, turn := range window.RecentTurns {
		if turn.Role == "user" || turn.Role == "assistant" {
			messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
		}
	}
	messages = append(messages, llm.Message{Role: "user", Content: window.NewMessage})
	return messages
}
