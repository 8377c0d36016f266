package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MemoryEntry is one persisted long-term fact about a user. Priority runs
// 0-100; priority 0 marks the entry for deletion and hides it from the
// model until a purge pass removes it.
type MemoryEntry struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	FactText  string    `db:"fact_text"`
	Priority  int       `db:"priority"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ListActiveEntries returns a user's active (priority > 0) entries ordered
// by priority descending, most recently touched first within a priority.
// limit <= 0 means no limit.
func (s *Store) ListActiveEntries(ctx context.Context, userID string, limit int) ([]MemoryEntry, error) {
	query := `
		SELECT id, user_id, fact_text, priority, created_at, updated_at
		FROM memory_entries
		WHERE user_id = ? AND priority > 0
		ORDER BY priority DESC, updated_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var entries []MemoryEntry
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, storageErr("list active entries", err)
	}
	return entries, nil
}

// InsertEntry stores a new memory entry and returns it with id and
// timestamps filled in.
func (s *Store) InsertEntry(ctx context.Context, userID, factText string, priority int) (*MemoryEntry, error) {
	now := time.Now().UTC()
	entry := MemoryEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		FactText:  factText,
		Priority:  priority,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_entries (id, user_id, fact_text, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.FactText, entry.Priority, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return nil, storageErr("insert entry", err)
	}
	return &entry, nil
}

// SetPriority updates an entry's priority and refreshes its updated_at.
// Returns false when no entry matched the id for that user.
func (s *Store) SetPriority(ctx context.Context, userID, entryID string, priority int) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE memory_entries SET priority = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		priority, time.Now().UTC(), entryID, userID)
	if err != nil {
		return false, storageErr("set priority", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, storageErr("set priority", err)
	}
	return rows > 0, nil
}

// PurgeZeroPriority physically deletes entries the model marked with
// priority 0. Returns the number of rows removed.
func (s *Store) PurgeZeroPriority(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM memory_entries WHERE user_id = ? AND priority = 0`, userID)
	if err != nil {
		return 0, storageErr("purge zero priority", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("purge zero priority", err)
	}
	return rows, nil
}

// DeleteEntry removes one entry outright. Used by duplicate-merge sweeps.
func (s *Store) DeleteEntry(ctx context.Context, userID, entryID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM memory_entries WHERE id = ? AND user_id = ?`, entryID, userID)
	return storageErr("delete entry", err)
}

// CountActive returns how many active entries the user has.
func (s *Store) CountActive(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM memory_entries WHERE user_id = ? AND priority > 0`, userID)
	if err != nil {
		return 0, storageErr("count active", err)
	}
	return count, nil
}

// EvictOverCap deletes the lowest-priority active entries beyond max,
// keeping the top max by (priority desc, updated_at desc). Only called
// when over-cap eviction is enabled in configuration.
func (s *Store) EvictOverCap(ctx context.Context, userID string, max int) (int64, error) {
	if max <= 0 {
		return 0, nil
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM memory_entries
		WHERE user_id = ? AND priority > 0 AND id NOT IN (
			SELECT id FROM memory_entries
			WHERE user_id = ? AND priority > 0
			ORDER BY priority DESC, updated_at DESC
			LIMIT ?
		)`, userID, userID, max)
	if err != nil {
		return 0, storageErr("evict over cap", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("evict over cap", err)
	}
	return rows, nil
}
