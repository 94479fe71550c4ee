package store

import "context"

// ChatTurn is one archived message of a user↔persona conversation.
// Turns are immutable once written; insertion order is chronological.
type ChatTurn struct {
	ID        int32
	UID       string
	UserID    string
	PersonaID string
	Role      string // "user" | "assistant"
	Content   string
	CreatedTs int64
}

// CreateChatTurn is the payload for CreateChatTurn.
type CreateChatTurn struct {
	UID       string
	UserID    string
	PersonaID string
	Role      string
	Content   string
	CreatedTs int64
}

// FindChatTurn filters for ListChatTurns.
type FindChatTurn struct {
	UserID    string
	PersonaID string
	Limit     *int
}

// CreateChatTurn archives a completed turn.
func (s *Store) CreateChatTurn(ctx context.Context, create *CreateChatTurn) (*ChatTurn, error) {
	return s.driver.CreateChatTurn(ctx, create)
}

// ListChatTurns returns archived turns, ordered oldest first.
func (s *Store) ListChatTurns(ctx context.Context, find *FindChatTurn) ([]*ChatTurn, error) {
	return s.driver.ListChatTurns(ctx, find)
}

// DeleteChatTurns removes a user's archive for one persona.
func (s *Store) DeleteChatTurns(ctx context.Context, userID, personaID string) error {
	return s.driver.DeleteChatTurns(ctx, userID, personaID)
}
