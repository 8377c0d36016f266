package db

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "store.db"), log.New(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInsertAndListActiveEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertEntry(ctx, "u1", "Likes jazz", 30)
	require.NoError(t, err)
	_, err = store.InsertEntry(ctx, "u1", "Lives in Lisbon", 80)
	require.NoError(t, err)
	_, err = store.InsertEntry(ctx, "u2", "Other user fact", 99)
	require.NoError(t, err)

	entries, err := store.ListActiveEntries(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Lives in Lisbon", entries[0].FactText)
	assert.Equal(t, "Likes jazz", entries[1].FactText)
}

func TestListActiveEntriesLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, priority := range []int{10, 20, 30, 40} {
		_, err := store.InsertEntry(ctx, "u1", "fact "+string(rune('a'+i)), priority)
		require.NoError(t, err)
	}

	entries, err := store.ListActiveEntries(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 40, entries[0].Priority)
	assert.Equal(t, 30, entries[1].Priority)
}

func TestSetPriority(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry, err := store.InsertEntry(ctx, "u1", "Has a cat named Miso", 10)
	require.NoError(t, err)

	found, err := store.SetPriority(ctx, "u1", entry.ID, 55)
	require.NoError(t, err)
	assert.True(t, found)

	entries, err := store.ListActiveEntries(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 55, entries[0].Priority)
	assert.True(t, entries[0].UpdatedAt.After(entry.UpdatedAt) || entries[0].UpdatedAt.Equal(entry.UpdatedAt))

	found, err = store.SetPriority(ctx, "u1", "no-such-id", 55)
	require.NoError(t, err)
	assert.False(t, found)

	// Entries belong to their user.
	found, err = store.SetPriority(ctx, "u2", entry.ID, 1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestZeroPriorityHiddenAndPurged(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry, err := store.InsertEntry(ctx, "u1", "Old address", 40)
	require.NoError(t, err)
	_, err = store.InsertEntry(ctx, "u1", "New address", 60)
	require.NoError(t, err)

	_, err = store.SetPriority(ctx, "u1", entry.ID, 0)
	require.NoError(t, err)

	entries, err := store.ListActiveEntries(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "New address", entries[0].FactText)

	purged, err := store.PurgeZeroPriority(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	count, err := store.CountActive(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEvictOverCap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, priority := range []int{90, 70, 50, 30, 10} {
		_, err := store.InsertEntry(ctx, "u1", "fact "+string(rune('a'+i)), priority)
		require.NoError(t, err)
	}

	evicted, err := store.EvictOverCap(ctx, "u1", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 2, evicted)

	entries, err := store.ListActiveEntries(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 90, entries[0].Priority)
	assert.Equal(t, 50, entries[2].Priority)
}

func TestAppendAndListRecentTurns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AppendTurn(ctx, "u1", "hello", "hi there", "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = store.AppendTurn(ctx, "u1", "what's the weather", "sunny", `{"relevant_for_context":false}`)
	require.NoError(t, err)

	turns, err := store.ListRecentTurns(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "what's the weather", turns[0].UserInput)
	assert.Equal(t, "hello", turns[1].UserInput)
	assert.True(t, turns[0].InteractionMeta.Valid)
	assert.False(t, turns[1].InteractionMeta.Valid)
}

func TestPatchLastTurnReply(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	found, err := store.PatchLastTurnReply(ctx, "u1", "updated")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = store.AppendTurn(ctx, "u1", "call Ana", "Calling Ana", "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = store.AppendTurn(ctx, "u1", "call Bruno", "Calling Bruno", "")
	require.NoError(t, err)

	found, err = store.PatchLastTurnReply(ctx, "u1", "Calling Bruno on mobile")
	require.NoError(t, err)
	assert.True(t, found)

	turns, err := store.ListRecentTurns(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "Calling Bruno on mobile", turns[0].AssistantReply)
	assert.Equal(t, "Calling Ana", turns[1].AssistantReply)
}

func TestListTurnsPage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.AppendTurn(ctx, "u1", "msg "+string(rune('a'+i)), "reply", "")
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	turns, total, err := store.ListTurnsPage(ctx, "u1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, turns, 2)
	assert.Equal(t, "msg e", turns[0].UserInput)

	turns, total, err = store.ListTurnsPage(ctx, "u1", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, turns, 1)
	assert.Equal(t, "msg a", turns[0].UserInput)
}
