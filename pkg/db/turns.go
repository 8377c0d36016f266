package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Turn is one user input and the assistant reply it produced. Turns are
// immutable once written except for PatchLastTurnReply, the single path
// that overwrites the most recent reply after a follow-up signal.
type Turn struct {
	ID              string         `db:"id"`
	UserID          string         `db:"user_id"`
	UserInput       string         `db:"user_input"`
	AssistantReply  string         `db:"assistant_reply"`
	InteractionMeta sql.NullString `db:"interaction_meta"`
	CreatedAt       time.Time      `db:"created_at"`
}

// AppendTurn persists a completed turn and returns it with id and
// timestamp filled in. interactionMeta may be empty.
func (s *Store) AppendTurn(ctx context.Context, userID, userInput, assistantReply, interactionMeta string) (*Turn, error) {
	turn := Turn{
		ID:             uuid.New().String(),
		UserID:         userID,
		UserInput:      userInput,
		AssistantReply: assistantReply,
		CreatedAt:      time.Now().UTC(),
	}
	if interactionMeta != "" {
		turn.InteractionMeta = sql.NullString{String: interactionMeta, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (id, user_id, user_input, assistant_reply, interaction_meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.UserID, turn.UserInput, turn.AssistantReply, turn.InteractionMeta, turn.CreatedAt)
	if err != nil {
		return nil, storageErr("append turn", err)
	}
	return &turn, nil
}

// ListRecentTurns returns the user's latest turns, newest first.
func (s *Store) ListRecentTurns(ctx context.Context, userID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	var turns []Turn
	err := s.db.SelectContext(ctx, &turns, `
		SELECT id, user_id, user_input, assistant_reply, interaction_meta, created_at
		FROM turns
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, storageErr("list recent turns", err)
	}
	return turns, nil
}

// PatchLastTurnReply overwrites the assistant reply of the user's most
// recent turn. Returns false when the user has no turns yet.
func (s *Store) PatchLastTurnReply(ctx context.Context, userID, assistantReply string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE turns SET assistant_reply = ?
		WHERE id = (
			SELECT id FROM turns WHERE user_id = ?
			ORDER BY created_at DESC, id DESC LIMIT 1
		)`, assistantReply, userID)
	if err != nil {
		return false, storageErr("patch last turn", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, storageErr("patch last turn", err)
	}
	return rows > 0, nil
}

// ListTurnsPage returns one page of a user's history, newest first, along
// with the total turn count for pagination.
func (s *Store) ListTurnsPage(ctx context.Context, userID string, limit, offset int) ([]Turn, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	var turns []Turn
	err := s.db.SelectContext(ctx, &turns, `
		SELECT id, user_id, user_input, assistant_reply, interaction_meta, created_at
		FROM turns
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, 0, storageErr("list turns page", err)
	}

	var total int
	if err := s.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM turns WHERE user_id = ?`, userID); err != nil {
		return nil, 0, storageErr("count turns", err)
	}
	return turns, total, nil
}
