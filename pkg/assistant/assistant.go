package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/evermind-ai/evermind/pkg/ai"
)

// Options tunes one assistant service instance.
type Options struct {
	Budget           Budget
	MaxActiveEntries int
	HistoryLookback  int
	EvictOverCap     bool
}

// Service runs the full turn cycle: read memory and history, assemble the
// bounded context, call the model, persist the turn, reconcile memory, and
// notify subscribers. Turns for the same user are serialized.
type Service struct {
	logger     *log.Logger
	gateway    Gateway
	store      Storage
	nc         *nats.Conn
	budgeter   *Budgeter
	reconciler *Reconciler
	locks      *userLocks
	fixed      string
	maxActive  int
	lookback   int
}

func NewService(logger *log.Logger, gateway Gateway, store Storage, nc *nats.Conn, opts Options) *Service {
	return &Service{
		logger:     logger,
		gateway:    gateway,
		store:      store,
		nc:         nc,
		budgeter:   NewBudgeter(logger, opts.Budget),
		reconciler: NewReconciler(logger, store, opts.MaxActiveEntries, opts.EvictOverCap),
		locks:      newUserLocks(),
		fixed:      fixedInstructions(opts.MaxActiveEntries),
		maxActive:  opts.MaxActiveEntries,
		lookback:   opts.HistoryLookback,
	}
}

// turnEvent is published after every persisted turn.
type turnEvent struct {
	UserID            string    `json:"user_id"`
	ReplyText         string    `json:"reply_text"`
	ContinueListening bool      `json:"continue_listening"`
	Patched           bool      `json:"patched"`
	CreatedAt         time.Time `json:"created_at"`
}

// HandleTurn processes one user message end to end. A non-nil patch
// regenerates against enriched input and overwrites the most recent reply
// instead of appending a turn.
//
// Storage and model failures before the turn is persisted abort the turn.
// Failures after persistence (reconcile, publish) are logged and the reply
// is still returned: the user already has their answer.
func (s *Service) HandleTurn(ctx context.Context, userID, text string, patch *PatchSignal) (*TurnResult, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	entries, err := s.store.ListActiveEntries(ctx, userID, s.maxActive)
	if err != nil {
		return nil, errors.Wrap(err, "loading memory entries")
	}
	turns, err := s.store.ListRecentTurns(ctx, userID, s.lookback)
	if err != nil {
		return nil, errors.Wrap(err, "loading recent turns")
	}

	instructions, snap := s.budgeter.Build(s.fixed, entries, turns)
	prompt := buildPrompt(text, patch)

	reply, err := s.gateway.Generate(ctx, instructions, prompt)
	if err != nil {
		return nil, err
	}

	replyText := reply.ReplyText
	continueListening := reply.ContinueListening
	if reply.ServerSkill != nil {
		augmented, err := s.gateway.GenerateWithSearch(ctx, instructions, searchPrompt(prompt, reply.ServerSkill))
		if err != nil {
			return nil, err
		}
		s.logger.Info("Fulfilled server skill", "user_id", userID, "skill", reply.ServerSkill.Name)
		replyText = augmented.ReplyText
		continueListening = augmented.ContinueListening
	}

	if err := s.persistTurn(ctx, userID, text, replyText, reply, patch != nil); err != nil {
		return nil, err
	}

	// The reply is already durable; memory drift here self-corrects on a
	// later turn, so the user still gets their answer.
	if err := s.reconciler.Apply(ctx, userID, reply, snap); err != nil {
		s.logger.Error("Memory reconciliation failed", "user_id", userID, "error", err)
	}

	s.publishTurn(userID, replyText, continueListening, patch != nil)

	return &TurnResult{
		ReplyText:         replyText,
		ContinueListening: continueListening,
		Skills:            reply.Skills,
	}, nil
}

func (s *Service) persistTurn(ctx context.Context, userID, text, replyText string, reply *ai.ModelReply, patched bool) error {
	if patched {
		found, err := s.store.PatchLastTurnReply(ctx, userID, replyText)
		if err != nil {
			return errors.Wrap(err, "patching last turn")
		}
		if found {
			return nil
		}
		s.logger.Warn("Patch arrived with no turn to overwrite, appending instead", "user_id", userID)
	}

	meta := ""
	if reply.Interaction != nil {
		raw, err := json.Marshal(reply.Interaction)
		if err != nil {
			s.logger.Warn("Dropping unmarshalable interaction meta", "user_id", userID, "error", err)
		} else {
			meta = string(raw)
		}
	}

	if _, err := s.store.AppendTurn(ctx, userID, text, replyText, meta); err != nil {
		return errors.Wrap(err, "persisting turn")
	}
	return nil
}

func (s *Service) publishTurn(userID, replyText string, continueListening, patched bool) {
	if s.nc == nil {
		return
	}

	payload, err := json.Marshal(turnEvent{
		UserID:            userID,
		ReplyText:         replyText,
		ContinueListening: continueListening,
		Patched:           patched,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("Failed to encode turn event", "user_id", userID, "error", err)
		return
	}
	subject := fmt.Sprintf("assistant.turn.%s", userID)
	if err := s.nc.Publish(subject, payload); err != nil {
		s.logger.Warn("Failed to publish turn event", "subject", subject, "error", err)
	}
}

func buildPrompt(text string, patch *PatchSignal) string {
	if patch == nil {
		return text
	}

	prompt := text
	if patch.EnrichedPrompt != "" {
		prompt = patch.EnrichedPrompt
	}
	if len(patch.ResolvableNames) > 0 {
		prompt += "\n\nKnown names: " + strings.Join(patch.ResolvableNames, ", ")
	}
	return prompt
}

// searchPrompt prefers an explicit query from the skill parameters and
// falls back to the user's own words.
func searchPrompt(original string, skill *ai.Skill) string {
	if skill.Params != nil {
		if q, ok := skill.Params["query"].(string); ok && strings.TrimSpace(q) != "" {
			return q
		}
	}
	return original
}

// HistoryTurn is the outward shape of one persisted turn.
type HistoryTurn struct {
	ID              string    `json:"id"`
	UserInput       string    `json:"user_input"`
	AssistantReply  string    `json:"assistant_reply"`
	InteractionMeta string    `json:"interaction_meta,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// HistoryPage is one page of the user's persisted conversation.
type HistoryPage struct {
	Turns      []HistoryTurn `json:"turns"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalTurns int           `json:"total_turns"`
	TotalPages int           `json:"total_pages"`
}

// History returns persisted turns newest first, paginated. Page numbers
// are 1-based; out-of-range pages return an empty list, not an error.
func (s *Service) History(ctx context.Context, userID string, page, pageSize int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	turns, total, err := s.store.ListTurnsPage(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, errors.Wrap(err, "loading history page")
	}

	views := make([]HistoryTurn, 0, len(turns))
	for _, turn := range turns {
		view := HistoryTurn{
			ID:             turn.ID,
			UserInput:      turn.UserInput,
			AssistantReply: turn.AssistantReply,
			CreatedAt:      turn.CreatedAt,
		}
		if turn.InteractionMeta.Valid {
			view.InteractionMeta = turn.InteractionMeta.String
		}
		views = append(views, view)
	}

	totalPages := (total + pageSize - 1) / pageSize
	return &HistoryPage{
		Turns:      views,
		Page:       page,
		PageSize:   pageSize,
		TotalTurns: total,
		TotalPages: totalPages,
	}, nil
}

// ContextStats sizes the user's raw memory and history pools against the
// configured budgets.
func (s *Service) ContextStats(ctx context.Context, userID string) (*Stats, error) {
	entries, err := s.store.ListActiveEntries(ctx, userID, 0)
	if err != nil {
		return nil, errors.Wrap(err, "loading memory entries")
	}
	turns, err := s.store.ListRecentTurns(ctx, userID, s.lookback)
	if err != nil {
		return nil, errors.Wrap(err, "loading recent turns")
	}

	stats := s.budgeter.CalculateStats(entries, turns)
	return &stats, nil
}
