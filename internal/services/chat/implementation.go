package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	openaisvc "github.com/vaihtoaktivaattori/portal/internal/infrastructure/openai"
	"github.com/vaihtoaktivaattori/portal/internal/services/chat/models"
	"github.com/vaihtoaktivaattori/portal/internal/services/tools"
)

// maxToolRounds bounds model -> tool -> model round trips per turn.
const maxToolRounds = 3

var ErrNoMessages = errors.New("empty messages array")

type Implementation struct {
	client       *openai.Client
	model        string
	toolService  *tools.Service
	toolExecutor *tools.ToolExecutor
	systemPrompt *SystemPrompt
}

func NewService(openAIService *openaisvc.Service, toolService *tools.Service, toolExecutor *tools.ToolExecutor) (*Implementation, error) {
	if openAIService == nil {
		return nil, fmt.Errorf("OpenAI service is required")
	}

	return &Implementation{
		client:       openAIService.GetClient(),
		model:        openAIService.Model(),
		toolService:  toolService,
		toolExecutor: toolExecutor,
		systemPrompt: NewSystemPrompt(),
	}, nil
}

func (s *Implementation) StreamTurn(ctx context.Context, turn Turn, emit Emit) error {
	messages := turn.Messages
	if len(messages) == 0 {
		return ErrNoMessages
	}

	prompt := s.systemPrompt
	if messages[0].Role == openai.ChatMessageRoleSystem {
		prompt = prompt.WithCustom(messages[0].Content)
		messages = messages[1:]
		if len(messages) == 0 {
			return fmt.Errorf("%w after system prompt", ErrNoMessages)
		}
	}

	openaiMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: prompt.String(),
	})
	for _, msg := range messages {
		openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	log.Debug().
		Str("user_id", turn.UserID).
		Int("message_count", len(messages)).
		Strs("client_tools", turn.Tools.Enabled()).
		Msg("Streaming chat turn")

	var answer strings.Builder
	for round := 0; ; round++ {
		var offered []openai.Tool
		if round < maxToolRounds && s.toolService != nil {
			offered = s.toolService.GetTools()
		}

		text, toolCalls, err := s.streamCompletion(ctx, openaiMessages, offered, emit)
		answer.WriteString(text)
		if err != nil {
			return err
		}
		if len(toolCalls) == 0 {
			break
		}

		openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   text,
			ToolCalls: toolCalls,
		})
		for _, call := range toolCalls {
			result, err := s.runTool(ctx, turn.UserID, call, emit)
			if err != nil {
				return err
			}
			openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	return emit(models.Done(answer.String()))
}

// streamCompletion runs one upstream completion, forwarding text deltas and
// collecting any tool calls the model makes.
func (s *Implementation) streamCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, offered []openai.Tool, emit Emit) (string, []openai.ToolCall, error) {
	stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: messages,
		Tools:    offered,
		Stream:   true,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to open chat completion stream")
		return "", nil, fmt.Errorf("failed to get chat completion: %w", err)
	}
	defer stream.Close()

	var text strings.Builder
	var calls []openai.ToolCall
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return text.String(), calls, nil
		}
		if err != nil {
			return text.String(), nil, fmt.Errorf("chat completion stream failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if err := emit(models.Delta(delta.Content)); err != nil {
				return text.String(), nil, err
			}
		}
		calls = mergeToolCalls(calls, delta.ToolCalls)
	}
}

// mergeToolCalls folds streamed tool call fragments into complete calls.
// Fragments of one call share an index; only the first carries id and name.
// A fragment may continue a known call or open the next one, anything else
// is dropped.
func mergeToolCalls(calls []openai.ToolCall, fragments []openai.ToolCall) []openai.ToolCall {
	for _, frag := range fragments {
		idx := len(calls)
		if frag.Index != nil {
			idx = *frag.Index
		} else if frag.ID == "" && len(calls) > 0 {
			idx = len(calls) - 1
		}
		if idx < 0 || idx > len(calls) {
			log.Warn().Int("index", idx).Int("calls", len(calls)).Msg("Dropping tool call fragment with out of range index")
			continue
		}
		if idx == len(calls) {
			calls = append(calls, openai.ToolCall{Type: openai.ToolTypeFunction})
		}

		call := &calls[idx]
		if frag.ID != "" {
			call.ID = frag.ID
		}
		if frag.Type != "" {
			call.Type = frag.Type
		}
		if frag.Function.Name != "" {
			call.Function.Name = frag.Function.Name
		}
		call.Function.Arguments += frag.Function.Arguments
	}
	return calls
}

func (s *Implementation) runTool(ctx context.Context, userID string, call openai.ToolCall, emit Emit) (string, error) {
	if err := emit(models.ToolInProgress(call.ID, call.Function.Name)); err != nil {
		return "", err
	}

	result, err := s.toolExecutor.ExecuteToolCall(ctx, userID, call)
	if err != nil {
		// the model gets the failure as the tool result and can answer without it
		log.Warn().Err(err).Str("tool", call.Function.Name).Msg("Tool call failed")
		result = "Tool failed: " + err.Error()
	}

	if err := emit(models.ToolCompleted(call.ID, call.Function.Name)); err != nil {
		return "", err
	}
	return result, nil
}

// IsRateLimited reports whether the upstream API rejected the request with 429.
func IsRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
