package assistant

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/evermind-ai/evermind/pkg/ai"
	"github.com/evermind-ai/evermind/pkg/db"
)

const (
	minPriority = 0
	maxPriority = 100
)

// Reconciler folds a model reply's memory directives back into the store:
// positional priority updates against the prompt snapshot, a deduplicated
// new fact, and the purge of anything demoted to zero.
type Reconciler struct {
	store        Storage
	logger       *log.Logger
	maxActive    int
	evictOverCap bool
}

func NewReconciler(logger *log.Logger, store Storage, maxActive int, evictOverCap bool) *Reconciler {
	return &Reconciler{
		store:        store,
		logger:       logger,
		maxActive:    maxActive,
		evictOverCap: evictOverCap,
	}
}

// Apply runs one reconcile pass for the given user. Fallback replies carry
// no directives and never mutate memory. The snapshot must be the exact
// entry list the model saw; entry numbers in the reply are 1-based
// positions into it.
func (r *Reconciler) Apply(ctx context.Context, userID string, reply *ai.ModelReply, snap Snapshot) error {
	if reply == nil || reply.Fallback {
		return nil
	}

	if err := r.applyPriorityUpdates(ctx, userID, reply.PriorityUpdates, snap); err != nil {
		return err
	}

	if err := r.recordNewFact(ctx, userID, reply.NewFact); err != nil {
		return err
	}

	purged, err := r.store.PurgeZeroPriority(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "purging zero-priority entries")
	}
	if purged > 0 {
		r.logger.Info("Purged demoted memory entries", "user_id", userID, "count", purged)
	}

	if r.evictOverCap {
		if err := r.enforceCap(ctx, userID); err != nil {
			return err
		}
	}

	return nil
}

func (r *Reconciler) applyPriorityUpdates(ctx context.Context, userID string, updates []ai.PriorityUpdate, snap Snapshot) error {
	for _, update := range updates {
		if update.EntryNumber < 1 || update.EntryNumber > len(snap.Entries) {
			r.logger.Warn("Priority update references entry outside snapshot, skipping",
				"user_id", userID, "entry_number", update.EntryNumber, "snapshot_size", len(snap.Entries))
			continue
		}

		entry := snap.Entries[update.EntryNumber-1]
		priority := clampPriority(update.NewPriority)

		found, err := r.store.SetPriority(ctx, userID, entry.ID, priority)
		if err != nil {
			return errors.Wrapf(err, "updating priority for entry %s", entry.ID)
		}
		if !found {
			r.logger.Warn("Priority update targeted a vanished entry", "user_id", userID, "entry_id", entry.ID)
			continue
		}
		r.logger.Debug("Updated entry priority",
			"user_id", userID, "entry_id", entry.ID, "old", entry.Priority, "new", priority)
	}
	return nil
}

// recordNewFact inserts the fact unless an active entry already says the
// same thing, in which case the existing entry absorbs it: it keeps the
// higher of the two priorities and its timestamp is refreshed.
func (r *Reconciler) recordNewFact(ctx context.Context, userID string, fact *ai.NewFact) error {
	if fact == nil {
		return nil
	}
	text := strings.TrimSpace(fact.Text)
	if text == "" {
		return nil
	}

	active, err := r.store.ListActiveEntries(ctx, userID, 0)
	if err != nil {
		return errors.Wrap(err, "listing entries for deduplication")
	}

	priority := clampPriority(fact.Priority)
	if duplicate := findDuplicate(active, text); duplicate != nil {
		merged := max(duplicate.Priority, priority)
		if _, err := r.store.SetPriority(ctx, userID, duplicate.ID, merged); err != nil {
			return errors.Wrapf(err, "merging duplicate fact into entry %s", duplicate.ID)
		}
		r.logger.Info("Merged duplicate fact",
			"user_id", userID, "entry_id", duplicate.ID, "priority", merged)
		return nil
	}

	entry, err := r.store.InsertEntry(ctx, userID, text, priority)
	if err != nil {
		return errors.Wrap(err, "inserting new fact")
	}
	r.logger.Info("Stored new fact", "user_id", userID, "entry_id", entry.ID, "priority", priority)
	return nil
}

func (r *Reconciler) enforceCap(ctx context.Context, userID string) error {
	count, err := r.store.CountActive(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "counting active entries")
	}
	if count <= r.maxActive {
		return nil
	}

	evicted, err := r.store.EvictOverCap(ctx, userID, r.maxActive)
	if err != nil {
		return errors.Wrap(err, "evicting entries over cap")
	}
	r.logger.Info("Evicted lowest-ranked entries over cap",
		"user_id", userID, "count", evicted, "max_active", r.maxActive)
	return nil
}

func findDuplicate(entries []db.MemoryEntry, text string) *db.MemoryEntry {
	for i := range entries {
		if isDuplicateFact(entries[i].FactText, text) {
			return &entries[i]
		}
	}
	return nil
}

func clampPriority(p int) int {
	if p < minPriority {
		return minPriority
	}
	if p > maxPriority {
		return maxPriority
	}
	return p
}
