package assistant

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/evermind-ai/evermind/pkg/ai"
	"github.com/evermind-ai/evermind/pkg/db"
)

// fakeStore is an in-memory Storage double with per-operation error
// injection.
type fakeStore struct {
	mu      sync.Mutex
	entries []db.MemoryEntry
	turns   []db.Turn
	seq     int
	errs    map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{errs: map[string]error{}}
}

func (f *fakeStore) failOn(op string, err error) {
	f.errs[op] = err
}

func (f *fakeStore) now() time.Time {
	f.seq++
	return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(f.seq) * time.Second)
}

func (f *fakeStore) ListActiveEntries(_ context.Context, userID string, limit int) ([]db.MemoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["list"]; err != nil {
		return nil, err
	}

	var active []db.MemoryEntry
	for _, e := range f.entries {
		if e.UserID == userID && e.Priority > 0 {
			active = append(active, e)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority > active[j].Priority
		}
		return active[i].UpdatedAt.After(active[j].UpdatedAt)
	})
	if limit > 0 && len(active) > limit {
		active = active[:limit]
	}
	return active, nil
}

func (f *fakeStore) InsertEntry(_ context.Context, userID, factText string, priority int) (*db.MemoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["insert"]; err != nil {
		return nil, err
	}

	now := f.now()
	entry := db.MemoryEntry{
		ID:        fmt.Sprintf("entry-%d", f.seq),
		UserID:    userID,
		FactText:  factText,
		Priority:  priority,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeStore) SetPriority(_ context.Context, userID, entryID string, priority int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["setPriority"]; err != nil {
		return false, err
	}

	for i := range f.entries {
		if f.entries[i].ID == entryID && f.entries[i].UserID == userID {
			f.entries[i].Priority = priority
			f.entries[i].UpdatedAt = f.now()
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) PurgeZeroPriority(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["purge"]; err != nil {
		return 0, err
	}

	var kept []db.MemoryEntry
	var purged int64
	for _, e := range f.entries {
		if e.UserID == userID && e.Priority == 0 {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	f.entries = kept
	return purged, nil
}

func (f *fakeStore) DeleteEntry(_ context.Context, userID, entryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []db.MemoryEntry
	for _, e := range f.entries {
		if e.UserID == userID && e.ID == entryID {
			continue
		}
		kept = append(kept, e)
	}
	f.entries = kept
	return nil
}

func (f *fakeStore) CountActive(ctx context.Context, userID string) (int, error) {
	if err := f.errs["count"]; err != nil {
		return 0, err
	}
	active, err := f.ListActiveEntries(ctx, userID, 0)
	if err != nil {
		return 0, err
	}
	return len(active), nil
}

func (f *fakeStore) EvictOverCap(ctx context.Context, userID string, max int) (int64, error) {
	if err := f.errs["evict"]; err != nil {
		return 0, err
	}
	active, err := f.ListActiveEntries(ctx, userID, 0)
	if err != nil {
		return 0, err
	}
	if len(active) <= max {
		return 0, nil
	}

	var evicted int64
	for _, victim := range active[max:] {
		if err := f.DeleteEntry(ctx, userID, victim.ID); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}

func (f *fakeStore) AppendTurn(_ context.Context, userID, userInput, assistantReply, interactionMeta string) (*db.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["append"]; err != nil {
		return nil, err
	}

	turn := db.Turn{
		ID:             fmt.Sprintf("turn-%d", len(f.turns)+1),
		UserID:         userID,
		UserInput:      userInput,
		AssistantReply: assistantReply,
		CreatedAt:      f.now(),
	}
	if interactionMeta != "" {
		turn.InteractionMeta.String = interactionMeta
		turn.InteractionMeta.Valid = true
	}
	f.turns = append(f.turns, turn)
	return &turn, nil
}

func (f *fakeStore) ListRecentTurns(_ context.Context, userID string, limit int) ([]db.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["listTurns"]; err != nil {
		return nil, err
	}

	var recent []db.Turn
	for i := len(f.turns) - 1; i >= 0; i-- {
		if f.turns[i].UserID != userID {
			continue
		}
		recent = append(recent, f.turns[i])
		if limit > 0 && len(recent) == limit {
			break
		}
	}
	return recent, nil
}

func (f *fakeStore) PatchLastTurnReply(_ context.Context, userID, assistantReply string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["patch"]; err != nil {
		return false, err
	}

	for i := len(f.turns) - 1; i >= 0; i-- {
		if f.turns[i].UserID == userID {
			f.turns[i].AssistantReply = assistantReply
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListTurnsPage(ctx context.Context, userID string, limit, offset int) ([]db.Turn, int, error) {
	all, err := f.ListRecentTurns(ctx, userID, 0)
	if err != nil {
		return nil, 0, err
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// fakeGateway replays scripted replies and records what it was asked.
type fakeGateway struct {
	reply       *ai.ModelReply
	err         error
	searchReply *ai.ModelReply
	searchErr   error

	instructions  []string
	prompts       []string
	searchPrompts []string
}

func (g *fakeGateway) Generate(_ context.Context, systemInstructions, userPrompt string) (*ai.ModelReply, error) {
	g.instructions = append(g.instructions, systemInstructions)
	g.prompts = append(g.prompts, userPrompt)
	if g.err != nil {
		return nil, g.err
	}
	return g.reply, nil
}

func (g *fakeGateway) GenerateWithSearch(_ context.Context, systemInstructions, userPrompt string) (*ai.ModelReply, error) {
	g.searchPrompts = append(g.searchPrompts, userPrompt)
	if g.searchErr != nil {
		return nil, g.searchErr
	}
	return g.searchReply, nil
}
