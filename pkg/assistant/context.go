package assistant

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"

	"github.com/evermind-ai/evermind/pkg/db"
)

const (
	memorySectionHeader  = "KEY CONTEXT FROM PREVIOUS IMPORTANT INTERACTIONS:\n"
	historySectionHeader = "RECENT CONVERSATION HISTORY:\n"
	truncationMarker     = "\n\n[Context truncated to fit limits]"
)

// Budget holds the three independent character caps for one assembled
// context.
type Budget struct {
	MaxMemoryChars  int
	MaxHistoryChars int
	MaxTotalChars   int
}

// Budgeter assembles the bounded system instructions for a model call:
// fixed response contract, then the highest-priority memory entries, then
// recent history, each under its own cap.
type Budgeter struct {
	budget Budget
	logger *log.Logger
}

func NewBudgeter(logger *log.Logger, budget Budget) *Budgeter {
	return &Budgeter{budget: budget, logger: logger}
}

// Build produces the context text and the snapshot of what actually made
// it in. entries must already be ordered by priority desc, recency desc;
// turns arrive newest first as the store returns them.
//
// The output never exceeds MaxTotalChars unless the fixed instructions
// alone are larger, in which case they are emitted intact and the overflow
// is logged; the instructions are never cut.
func (b *Budgeter) Build(fixed string, entries []db.MemoryEntry, turns []db.Turn) (string, Snapshot) {
	var snap Snapshot

	memorySection := b.buildMemorySection(entries, &snap)
	historySection := b.buildHistorySection(turns, &snap)

	instruction := fixed
	if memorySection != "" {
		instruction += "\n\n" + memorySection
	}
	if historySection != "" {
		instruction += "\n\n" + historySection
	}

	if len(instruction) <= b.budget.MaxTotalChars {
		b.logger.Debug("Assembled context", "chars", len(instruction), "entries", len(snap.Entries), "turns", len(snap.Turns))
		return instruction, snap
	}

	cut := b.budget.MaxTotalChars - len(truncationMarker)
	if cut < len(fixed) {
		b.logger.Error("Fixed instructions exceed total context budget, emitting instructions only",
			"fixed_chars", len(fixed), "max_total_chars", b.budget.MaxTotalChars)
		return fixed, snap
	}

	// Back up to a rune boundary so the cut never splits a character.
	for cut > 0 && !utf8.RuneStart(instruction[cut]) {
		cut--
	}

	b.logger.Warn("Context too long, truncating tail",
		"chars", len(instruction), "max_total_chars", b.budget.MaxTotalChars)
	return instruction[:cut] + truncationMarker, snap
}

// buildMemorySection emits a contiguous prefix of the priority-ranked
// entries: the first line that does not fit excludes itself and everything
// after it, regardless of later line sizes.
func (b *Budgeter) buildMemorySection(entries []db.MemoryEntry, snap *Snapshot) string {
	if len(entries) == 0 {
		return ""
	}

	var content strings.Builder
	for i, entry := range entries {
		line := fmt.Sprintf("%d. [%s | priority: %d] %s\n",
			i+1, entry.UpdatedAt.Format(time.RFC3339), entry.Priority, entry.FactText)
		if content.Len()+len(line) > b.budget.MaxMemoryChars {
			b.logger.Debug("Memory section truncated",
				"chars", content.Len(), "entries_skipped", len(entries)-i)
			break
		}
		content.WriteString(line)
		snap.Entries = append(snap.Entries, entry)
	}

	if content.Len() == 0 {
		return ""
	}
	return memorySectionHeader + content.String()
}

// buildHistorySection selects turn pairs newest first under the history
// cap, then re-emits the accepted pairs oldest first so the model reads
// the conversation forward in time.
func (b *Budgeter) buildHistorySection(turns []db.Turn, snap *Snapshot) string {
	if len(turns) == 0 {
		return ""
	}

	var accepted []db.Turn
	var pairs []string
	total := 0
	for _, turn := range turns {
		pair := formatTurnPair(turn)
		if total+len(pair) > b.budget.MaxHistoryChars {
			b.logger.Debug("History section truncated", "chars", total)
			break
		}
		total += len(pair)
		accepted = append(accepted, turn)
		pairs = append(pairs, pair)
	}

	if len(accepted) == 0 {
		return ""
	}

	// Selection ran newest-first; flip to chronological for emission.
	snap.Turns = lo.Reverse(accepted)
	return historySectionHeader + strings.Join(lo.Reverse(pairs), "")
}

func formatTurnPair(turn db.Turn) string {
	reply := turn.AssistantReply
	if lower := strings.ToLower(reply); strings.HasPrefix(lower, "assistant:") {
		reply = strings.TrimSpace(reply[len("assistant:"):])
	}
	return fmt.Sprintf("User: %s (at %s)\nAssistant: %s\n\n",
		turn.UserInput, turn.CreatedAt.Format(time.RFC3339), reply)
}

// Stats reports context usage for diagnostics.
type Stats struct {
	MemoryEntries      int  `json:"memory_entries"`
	MemoryChars        int  `json:"memory_chars"`
	HistoryTurns       int  `json:"history_turns"`
	HistoryChars       int  `json:"history_chars"`
	MemoryWithinLimit  bool `json:"memory_within_limit"`
	HistoryWithinLimit bool `json:"history_within_limit"`
	TotalWithinLimit   bool `json:"total_within_limit"`
}

// CalculateStats sizes the raw pools before budgeting.
func (b *Budgeter) CalculateStats(entries []db.MemoryEntry, turns []db.Turn) Stats {
	memoryChars := lo.SumBy(entries, func(e db.MemoryEntry) int { return len(e.FactText) })
	historyChars := lo.SumBy(turns, func(t db.Turn) int { return len(t.UserInput) + len(t.AssistantReply) })

	return Stats{
		MemoryEntries:      len(entries),
		MemoryChars:        memoryChars,
		HistoryTurns:       len(turns),
		HistoryChars:       historyChars,
		MemoryWithinLimit:  memoryChars <= b.budget.MaxMemoryChars,
		HistoryWithinLimit: historyChars <= b.budget.MaxHistoryChars,
		TotalWithinLimit:   memoryChars+historyChars <= b.budget.MaxTotalChars,
	}
}
