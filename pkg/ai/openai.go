package ai

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/pkg/errors"

	"github.com/evermind-ai/evermind/pkg/helpers"
)

const ReplyToolName = "respond"

// Service talks to an OpenAI-compatible completions endpoint. The
// structured mode forces a call to the reply tool and parses its
// arguments; the augmented mode runs the search-capable model with plain
// text output.
type Service struct {
	client           *openai.Client
	logger           *log.Logger
	completionsModel string
	searchModel      string
	replyTool        openai.ChatCompletionToolParam
}

func NewOpenAIService(logger *log.Logger, apiKey, baseURL, completionsModel, searchModel string) (*Service, error) {
	schema, err := helpers.ConvertToInputSchema(ReplyArguments{})
	if err != nil {
		return nil, errors.Wrap(err, "building reply tool schema")
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	)
	return &Service{
		client:           &client,
		logger:           logger,
		completionsModel: completionsModel,
		searchModel:      searchModel,
		replyTool: openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        ReplyToolName,
				Description: param.NewOpt("Return the assistant's structured reply for this turn, matching the schema exactly."),
				Parameters:  openai.FunctionParameters(schema),
			},
		},
	}, nil
}

// Generate runs the default structured call. Malformed or empty output is
// recoverable and yields the fixed fallback reply; transport and API
// failures are fatal and surface as *ModelError.
func (s *Service) Generate(ctx context.Context, systemInstructions, userPrompt string) (*ModelReply, error) {
	completion, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.completionsModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemInstructions),
			openai.UserMessage(userPrompt),
		},
		Tools:       []openai.ChatCompletionToolParam{s.replyTool},
		ToolChoice:  openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("required")},
		Temperature: param.NewOpt(0.7),
	})
	if err != nil {
		return nil, &ModelError{Err: err}
	}
	if len(completion.Choices) == 0 {
		s.logger.Warn("Completions returned no choices, using fallback reply")
		return FallbackReply(), nil
	}

	message := completion.Choices[0].Message
	for _, toolCall := range message.ToolCalls {
		if toolCall.Function.Name != ReplyToolName {
			s.logger.Debug("Skipping unexpected tool call", "name", toolCall.Function.Name)
			continue
		}
		reply, err := parseReplyArguments(toolCall.Function.Arguments)
		if err != nil {
			s.logger.Warn("Malformed structured reply, using fallback", "error", err)
			return FallbackReply(), nil
		}
		return reply, nil
	}

	s.logger.Warn("Model returned no structured reply tool call, using fallback")
	return FallbackReply(), nil
}

// GenerateWithSearch runs the single augmented call with the live-search
// model and natural-language output. The caller must not re-inspect the
// result for further capability requests.
func (s *Service) GenerateWithSearch(ctx context.Context, systemInstructions, userPrompt string) (*ModelReply, error) {
	completion, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.searchModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemInstructions),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return nil, &ModelError{Err: err}
	}
	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		s.logger.Warn("Augmented call returned empty content, using fallback reply")
		return FallbackReply(), nil
	}
	return syntheticReply(completion.Choices[0].Message.Content), nil
}
