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
// OPENAI-COMPATIBLE PROVIDER IMPLEMENTATION
// Covers OpenAI itself plus the OpenAI-compatible endpoints used in the
// flow configs (doubao, deepseek). Doubao-specific request fields
// (thinking, reasoning_effort) are forwarded when configured.
// ============================================================================

// OpenAIClient implements LLMProvider for OpenAI-compatible chat APIs.
type OpenAIClient struct {
	config     ProviderConfig
	opts       ClientOptions
	httpClient *http.Client
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Tools       []openAITool    `json:"tools,omitempty"`

	// Doubao extensions, omitted for providers that do not use them.
	Thinking        *ThinkingConfig `json:"thinking,omitempty"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openAITool struct {
	Type     string         `json:"type"` // always "function"
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(cfg ProviderConfig, opts ClientOptions) (*OpenAIClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base_url is required")
	}
	timeout := opts.TimeoutSeconds
	if timeout <= 0 {
		timeout = 120
	}
	return &OpenAIClient{
		config: cfg,
		opts:   opts,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}, nil
}

// GetModelName returns the model name.
func (c *OpenAIClient) GetModelName() string {
	return c.opts.Model
}

// Close closes the provider.
func (c *OpenAIClient) Close() error {
	return nil
}

// Generate generates a response given conversation messages.
func (c *OpenAIClient) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (string, []ToolCall, int, error) {
	request := c.buildRequest(messages, tools)

	body, err := json.Marshal(request)
	if err != nil {
		return "", nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.config.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

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

	var response openAIResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", nil, 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != nil {
		return "", nil, 0, fmt.Errorf("API error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return "", nil, 0, fmt.Errorf("API returned no choices")
	}

	choice := response.Choices[0]
	var toolCalls []ToolCall
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{}
			}
		}
		toolCalls = append(toolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
			RawArgs:   tc.Function.Arguments,
		})
	}

	return choice.Message.Content, toolCalls, response.Usage.TotalTokens, nil
}

// buildRequest converts the universal message format into an
// OpenAI-compatible request payload.
func (c *OpenAIClient) buildRequest(messages []Message, tools []ToolDefinition) openAIRequest {
	oaMessages := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		om := openAIMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
		}
		for _, tc := range msg.ToolCalls {
			rawArgs := tc.RawArgs
			if rawArgs == "" {
				if b, err := json.Marshal(tc.Arguments); err == nil {
					rawArgs = string(b)
				} else {
					rawArgs = "{}"
				}
			}
			otc := openAIToolCall{ID: tc.ID, Type: "function"}
			otc.Function.Name = tc.Name
			otc.Function.Arguments = rawArgs
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		oaMessages = append(oaMessages, om)
	}

	oaTools := make([]openAITool, 0, len(tools))
	for _, tool := range tools {
		oaTools = append(oaTools, openAITool{
			Type: "function",
			Function: openAIFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	return openAIRequest{
		Model:           c.opts.Model,
		Messages:        oaMessages,
		Temperature:     c.opts.Temperature,
		MaxTokens:       c.config.MaxTokens,
		Tools:           oaTools,
		Thinking:        c.opts.Thinking,
		ReasoningEffort: c.opts.ReasoningEffort,
	}
}
