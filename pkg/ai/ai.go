package ai

import "fmt"

// Skill is a capability request in a structured reply: either a
// client-executable skill passed through to the caller, or a server skill
// naming a secondary capability (live web search) the gateway can grant
// with one augmented call.
type Skill struct {
	Name   string         `json:"name"`
	Action string         `json:"action,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// PriorityUpdate re-prioritizes one memory entry by its 1-based position
// in the snapshot that was sent to the model. The model never sees storage
// ids, so positions must be remapped by the caller.
type PriorityUpdate struct {
	EntryNumber int `json:"entry_number" jsonschema:"description=1-based number of the key context entry to update"`
	NewPriority int `json:"new_priority" jsonschema:"description=New priority for the entry, 0 removes it"`
}

// InteractionParams summarizes the turn for long-term memory.
type InteractionParams struct {
	RelevantForContext bool   `json:"relevant_for_context" jsonschema:"description=Whether this interaction should be remembered across sessions"`
	ContextPriority    int    `json:"context_priority" jsonschema:"description=Priority of this interaction for context retention, 1-100"`
	RelevantInfo       string `json:"relevant_info" jsonschema:"description=Concise fact about the user learned from the interaction"`
}

// ModelReply is the validated result of one model call.
type ModelReply struct {
	ReplyText         string
	ContinueListening bool
	Skills            []Skill
	// ServerSkill, when set, names the secondary capability the model wants
	// the server to fulfil before answering.
	ServerSkill     *Skill
	PriorityUpdates []PriorityUpdate
	NewFact         *NewFact
	// Interaction carries the raw interaction summary for persistence
	// alongside the turn record.
	Interaction *InteractionParams
	// Fallback is true when the reply was substituted for malformed or
	// empty model output. Fallback replies never mutate memory.
	Fallback bool
}

// NewFact is a candidate long-term memory entry extracted from the turn.
type NewFact struct {
	Text     string
	Priority int
}

// ModelError marks a failed call to the completions endpoint. It is fatal
// to the turn; nothing has been persisted when it occurs.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model call failed: %v", e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}
