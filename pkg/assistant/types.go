package assistant

import (
	"context"

	"github.com/evermind-ai/evermind/pkg/ai"
	"github.com/evermind-ai/evermind/pkg/db"
)

// Gateway is what the orchestrator needs from the model layer.
type Gateway interface {
	Generate(ctx context.Context, systemInstructions, userPrompt string) (*ai.ModelReply, error)
	GenerateWithSearch(ctx context.Context, systemInstructions, userPrompt string) (*ai.ModelReply, error)
}

// Storage is the persistence surface the assistant needs. *db.Store
// implements it; tests substitute an in-memory double.
type Storage interface {
	ListActiveEntries(ctx context.Context, userID string, limit int) ([]db.MemoryEntry, error)
	InsertEntry(ctx context.Context, userID, factText string, priority int) (*db.MemoryEntry, error)
	SetPriority(ctx context.Context, userID, entryID string, priority int) (bool, error)
	PurgeZeroPriority(ctx context.Context, userID string) (int64, error)
	DeleteEntry(ctx context.Context, userID, entryID string) error
	CountActive(ctx context.Context, userID string) (int, error)
	EvictOverCap(ctx context.Context, userID string, max int) (int64, error)
	AppendTurn(ctx context.Context, userID, userInput, assistantReply, interactionMeta string) (*db.Turn, error)
	ListRecentTurns(ctx context.Context, userID string, limit int) ([]db.Turn, error)
	PatchLastTurnReply(ctx context.Context, userID, assistantReply string) (bool, error)
	ListTurnsPage(ctx context.Context, userID string, limit, offset int) ([]db.Turn, int, error)
}

// Snapshot is the bounded, ordered view of memory and history that was
// actually sent to the model for one turn. Positional references in the
// model's reply resolve against Entries, never against store ordering.
type Snapshot struct {
	// Entries in the order they were numbered in the prompt, 1-based.
	Entries []db.MemoryEntry
	// Turns in chronological order, oldest accepted first.
	Turns []db.Turn
}

// PatchSignal asks the orchestrator to regenerate and overwrite the most
// recent reply instead of appending a new turn. It arrives when a
// follow-up system signal lands after the original reply was persisted,
// such as a resolved contact id.
type PatchSignal struct {
	// EnrichedPrompt replaces the user text for regeneration when set.
	EnrichedPrompt string
	// ResolvableNames are appended to the prompt so the model can bind
	// them to the enriched data.
	ResolvableNames []string
}

// TurnResult is handed back to the inbound surface.
type TurnResult struct {
	ReplyText         string
	ContinueListening bool
	Skills            []ai.Skill
}
