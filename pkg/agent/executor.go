package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/GD25Workhome/gd25-biz-agent/pkg/llms"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/tools"
)

// defaultMaxIterations bounds the ReAct loop of one node execution.
const defaultMaxIterations = 10

// Executor runs the ReAct loop for one agent node. The system message is
// supplied per invocation; the executor holds only the model client, the
// bound tool set and the prompt cache key.
type Executor struct {
	llm            llms.LLMProvider
	toolDefs       []llms.ToolDefinition
	toolRegistry   *tools.Registry
	promptCacheKey string
	maxIterations  int
}

// PromptCacheKey returns the key of the cached system prompt template.
func (e *Executor) PromptCacheKey() string {
	return e.promptCacheKey
}

// Invoke runs the loop: call the model with [system] + conversation and
// the tool specs; dispatch every returned tool call through the registry
// (the ambient identity rides on ctx); append results as tool messages;
// repeat until the model answers without tool calls or the step limit is
// reached. Returns the final assistant text and the message trace.
//
// Tool failures are reported back to the model as tool-message text and
// the loop continues; only LLM errors abort.
func (e *Executor) Invoke(ctx context.Context, msgs []llms.Message, sysMsg llms.Message) (string, []llms.Message, error) {
	conversation := make([]llms.Message, 0, len(msgs)+1)
	conversation = append(conversation, sysMsg)
	conversation = append(conversation, msgs...)

	var lastText string
	totalTokens := 0

	for iteration := 1; iteration <= e.maxIterations; iteration++ {
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		default:
		}

		text, toolCalls, tokens, err := e.llm.Generate(ctx, conversation, e.toolDefs)
		if err != nil {
			return "", nil, fmt.Errorf("LLM call failed (iteration %d): %w", iteration, err)
		}
		totalTokens += tokens
		if text != "" {
			lastText = text
		}

		if len(toolCalls) == 0 {
			conversation = append(conversation, llms.AssistantMessage(text))
			slog.Debug("Agent loop complete",
				"iterations", iteration,
				"tokens", totalTokens)
			return lastText, conversation, nil
		}

		// Function-calling protocol: assistant message with tool calls,
		// then one tool message per result.
		conversation = append(conversation, llms.Message{
			Role:      llms.RoleAssistant,
			Content:   text,
			ToolCalls: toolCalls,
		})

		for _, toolCall := range toolCalls {
			select {
			case <-ctx.Done():
				return "", nil, ctx.Err()
			default:
			}

			result := e.toolRegistry.ExecuteTool(ctx, toolCall.Name, toolCall.Arguments)
			if !result.Success {
				slog.Warn("Tool call failed",
					"tool", toolCall.Name,
					"error", result.Error)
			}

			conversation = append(conversation, llms.Message{
				Role:       llms.RoleTool,
				Content:    result.Content,
				ToolCallID: toolCall.ID,
				Name:       toolCall.Name,
			})
		}
	}

	slog.Warn("Agent loop hit iteration limit", "max_iterations", e.maxIterations)
	return lastText, conversation, nil
}
