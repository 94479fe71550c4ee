package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/personakit/personakit/store"
)

func (d *DB) CreateChatTurn(ctx context.Context, create *store.CreateChatTurn) (*store.ChatTurn, error) {
	stmt := "INSERT INTO `chat_turn` (`uid`, `user_id`, `persona_id`, `role`, `content`, `created_ts`) VALUES (?, ?, ?, ?, ?, ?)"
	result, err := d.db.ExecContext(ctx, stmt, create.UID, create.UserID, create.PersonaID, create.Role, create.Content, create.CreatedTs)
	if err != nil {
		return nil, err
	}
	rawID, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &store.ChatTurn{
		ID:        int32(rawID),
		UID:       create.UID,
		UserID:    create.UserID,
		PersonaID: create.PersonaID,
		Role:      create.Role,
		Content:   create.Content,
		CreatedTs: create.CreatedTs,
	}, nil
}

func (d *DB) ListChatTurns(ctx context.Context, find *store.FindChatTurn) ([]*store.ChatTurn, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.UserID != "" {
		where, args = append(where, "`user_id` = ?"), append(args, find.UserID)
	}
	if find.PersonaID != "" {
		where, args = append(where, "`persona_id` = ?"), append(args, find.PersonaID)
	}
	query := fmt.Sprintf(
		"SELECT `id`, `uid`, `user_id`, `persona_id`, `role`, `content`, `created_ts` FROM `chat_turn` WHERE %s ORDER BY `id` ASC",
		strings.Join(where, " AND "),
	)
	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.ChatTurn
	for rows.Next() {
		turn := &store.ChatTurn{}
		if err := rows.Scan(&turn.ID, &turn.UID, &turn.UserID, &turn.PersonaID, &turn.Role, &turn.Content, &turn.CreatedTs); err != nil {
			return nil, err
		}
		list = append(list, turn)
	}
	return list, rows.Err()
}

func (d *DB) DeleteChatTurns(ctx context.Context, userID, personaID string) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM `chat_turn` WHERE `user_id` = ? AND `persona_id` = ?", userID, personaID)
	return err
}
