package ai

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

const fallbackReplyText = "Sorry, I couldn't process that request. Please try again."

// ReplyArguments is the wire shape of the structured reply tool call.
type ReplyArguments struct {
	ServerReply       string             `json:"server_reply" jsonschema:"description=Direct answer to the user in plain text"`
	Question          bool               `json:"question" jsonschema:"description=True when more input is needed from the user"`
	Skills            []Skill            `json:"skills,omitempty" jsonschema:"description=Client-executable skills, exactly as listed in the instructions"`
	ServerSkill       *Skill             `json:"server_skill,omitempty" jsonschema:"description=Server capability to fulfil before answering, leave empty otherwise"`
	InteractionParams *InteractionParams `json:"interaction_params" jsonschema:"description=Summary and retention priority for this interaction"`
	ContextUpdates    []PriorityUpdate   `json:"context_updates,omitempty" jsonschema:"description=Priority changes for numbered key context entries"`
}

// FallbackReply is returned in place of malformed or empty model output.
// It carries no memory mutations and ends the listening loop.
func FallbackReply() *ModelReply {
	return &ModelReply{
		ReplyText:         fallbackReplyText,
		ContinueListening: false,
		Fallback:          true,
	}
}

// parseReplyArguments validates the raw tool-call arguments into a
// ModelReply. Missing required fields are an error; every optional field
// gets an explicit default.
func parseReplyArguments(raw string) (*ModelReply, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty tool arguments")
	}

	var args ReplyArguments
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, errors.Wrap(err, "unmarshaling reply arguments")
	}
	if strings.TrimSpace(args.ServerReply) == "" {
		return nil, errors.New("missing server_reply")
	}
	if args.InteractionParams == nil {
		return nil, errors.New("missing interaction_params")
	}

	reply := &ModelReply{
		ReplyText:         args.ServerReply,
		ContinueListening: args.Question,
		Skills:            args.Skills,
		ServerSkill:       args.ServerSkill,
		PriorityUpdates:   args.ContextUpdates,
		Interaction:       args.InteractionParams,
	}

	if args.InteractionParams.RelevantForContext && strings.TrimSpace(args.InteractionParams.RelevantInfo) != "" {
		priority := args.InteractionParams.ContextPriority
		if priority < 1 {
			priority = 1
		}
		if priority > 100 {
			priority = 100
		}
		reply.NewFact = &NewFact{
			Text:     args.InteractionParams.RelevantInfo,
			Priority: priority,
		}
	}

	return reply, nil
}

// syntheticReply wraps the raw text of an augmented call. Whether the
// assistant keeps listening is inferred from a trailing question mark.
func syntheticReply(text string) *ModelReply {
	trimmed := strings.TrimSpace(text)
	return &ModelReply{
		ReplyText:         trimmed,
		ContinueListening: strings.HasSuffix(trimmed, "?"),
	}
}
