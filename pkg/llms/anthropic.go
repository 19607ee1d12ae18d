package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ============================================================================
// ANTHROPIC PROVIDER IMPLEMENTATION
// ============================================================================

// AnthropicClient implements LLMProvider for the Anthropic Messages API.
type AnthropicClient struct {
	config     ProviderConfig
	opts       ClientOptions
	httpClient *http.Client
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"` // JSON Schema
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

// anthropicContent represents content blocks in requests and responses.
type anthropicContent struct {
	Type      string          `json:"type"`                  // "text", "tool_use", "tool_result"
	Text      string          `json:"text,omitempty"`        // For text content
	ID        string          `json:"id,omitempty"`          // Tool call ID (for tool_use)
	Name      string          `json:"name,omitempty"`        // Tool name (for tool_use)
	Input     *map[string]any `json:"input,omitempty"`       // Tool arguments (pointer ensures field presence as {} for tool_use)
	ToolUseID string          `json:"tool_use_id,omitempty"` // Tool call ID reference (for tool_result)
	Content   string          `json:"content,omitempty"`     // Tool result content (for tool_result)
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicClient creates a client for the Anthropic API.
func NewAnthropicClient(cfg ProviderConfig, opts ClientOptions) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Anthropic")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	timeout := opts.TimeoutSeconds
	if timeout <= 0 {
		timeout = 120
	}
	return &AnthropicClient{
		config: cfg,
		opts:   opts,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}, nil
}

// GetModelName returns the model name.
func (c *AnthropicClient) GetModelName() string {
	return c.opts.Model
}

// Close closes the provider.
func (c *AnthropicClient) Close() error {
	return nil
}

// Generate generates a response given conversation messages.
func (c *AnthropicClient) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (string, []ToolCall, int, error) {
	request := c.buildRequest(messages, tools)

	body, err := json.Marshal(request)
	if err != nil {
		return "", nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", nil, 0, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var response anthropicResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", nil, 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != nil {
		return "", nil, 0, fmt.Errorf("anthropic API error: %s", response.Error.Message)
	}

	tokensUsed := response.Usage.InputTokens + response.Usage.OutputTokens

	// Extract text and tool calls from content blocks
	var text string
	var toolCalls []ToolCall
	for _, content := range response.Content {
		switch content.Type {
		case "text":
			text += content.Text
		case "tool_use":
			var args map[string]any
			if content.Input != nil {
				args = *content.Input
			}
			rawArgs, _ := json.Marshal(args)
			toolCalls = append(toolCalls, ToolCall{
				ID:        content.ID,
				Name:      content.Name,
				Arguments: args,
				RawArgs:   string(rawArgs),
			})
		}
	}

	return text, toolCalls, tokensUsed, nil
}

// buildRequest builds an Anthropic request with tool support. Anthropic
// requires the system prompt in a separate field and tool results as
// tool_result content blocks inside user messages.
func (c *AnthropicClient) buildRequest(messages []Message, tools []ToolDefinition) anthropicRequest {
	var system string
	anthropicMessages := make([]anthropicMessage, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if msg.Content != "" {
				if system != "" {
					system += "\n\n"
				}
				system += msg.Content
			}

		case RoleUser:
			anthropicMessages = append(anthropicMessages, anthropicMessage{
				Role: "user",
				Content: []anthropicContent{
					{Type: "text", Text: msg.Content},
				},
			})

		case RoleAssistant:
			content := make([]anthropicContent, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				content = append(content, anthropicContent{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, anthropicContent{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: &input,
				})
			}
			anthropicMessages = append(anthropicMessages, anthropicMessage{
				Role:    "assistant",
				Content: content,
			})

		case RoleTool:
			anthropicMessages = append(anthropicMessages, anthropicMessage{
				Role: "user",
				Content: []anthropicContent{
					{
						Type:      "tool_result",
						ToolUseID: msg.ToolCallID,
						Content:   msg.Content,
					},
				},
			})
		}
	}

	anthropicTools := make([]anthropicTool, 0, len(tools))
	for _, tool := range tools {
		anthropicTools = append(anthropicTools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Parameters,
		})
	}

	return anthropicRequest{
		Model:       c.opts.Model,
		Messages:    anthropicMessages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.opts.Temperature,
		System:      system,
		Tools:       anthropicTools,
	}
}
