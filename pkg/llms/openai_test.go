package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClient_Generate(t *testing.T) {
	var captured openAIRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {
							"name": "record_blood_pressure",
							"arguments": "{\"systolic\": 120, \"diastolic\": 80}"
						}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 30, "completion_tokens": 12, "total_tokens": 42}
		}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(
		ProviderConfig{Type: "openai", BaseURL: server.URL, APIKey: "test-key", MaxTokens: 4096},
		ClientOptions{
			Model:           "doubao-seed-1-6-251015",
			Temperature:     0.1,
			Thinking:        &ThinkingConfig{Type: "disabled"},
			ReasoningEffort: "minimal",
		})
	require.NoError(t, err)

	messages := []Message{
		SystemMessage("你是助手"),
		UserMessage("记录血压120/80"),
	}
	tools := []ToolDefinition{{
		Name:        "record_blood_pressure",
		Description: "记录血压",
		Parameters:  map[string]any{"type": "object"},
	}}

	text, toolCalls, tokens, err := client.Generate(context.Background(), messages, tools)
	require.NoError(t, err)

	assert.Empty(t, text)
	assert.Equal(t, 42, tokens)
	require.Len(t, toolCalls, 1)
	assert.Equal(t, "call_1", toolCalls[0].ID)
	assert.Equal(t, "record_blood_pressure", toolCalls[0].Name)
	assert.Equal(t, float64(120), toolCalls[0].Arguments["systolic"])

	// The request carried the doubao extensions and the tool spec.
	assert.Equal(t, "doubao-seed-1-6-251015", captured.Model)
	require.NotNil(t, captured.Thinking)
	assert.Equal(t, "disabled", captured.Thinking.Type)
	assert.Equal(t, "minimal", captured.ReasoningEffort)
	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "function", captured.Tools[0].Type)
	assert.Equal(t, "record_blood_pressure", captured.Tools[0].Function.Name)
}

func TestOpenAIClient_GenerateError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(
		ProviderConfig{Type: "openai", BaseURL: server.URL, APIKey: "k"},
		ClientOptions{Model: "m"})
	require.NoError(t, err)

	_, _, _, err = client.Generate(context.Background(), []Message{UserMessage("hi")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAIClient_ToolMessageRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// assistant tool-call message keeps its raw arguments; tool
		// message keeps the call id.
		require.Len(t, req.Messages, 4)
		assert.Equal(t, "assistant", req.Messages[2].Role)
		require.Len(t, req.Messages[2].ToolCalls, 1)
		assert.JSONEq(t, `{"systolic": 120}`, req.Messages[2].ToolCalls[0].Function.Arguments)
		assert.Equal(t, "tool", req.Messages[3].Role)
		assert.Equal(t, "call_1", req.Messages[3].ToolCallID)

		w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "已记录"}}], "usage": {"total_tokens": 5}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(
		ProviderConfig{Type: "openai", BaseURL: server.URL, APIKey: "k"},
		ClientOptions{Model: "m"})
	require.NoError(t, err)

	messages := []Message{
		SystemMessage("sys"),
		UserMessage("记录血压"),
		{Role: RoleAssistant, ToolCalls: []ToolCall{{
			ID: "call_1", Name: "record_blood_pressure", RawArgs: `{"systolic": 120}`,
		}}},
		{Role: RoleTool, Content: "已记录血压数据", ToolCallID: "call_1", Name: "record_blood_pressure"},
	}

	text, toolCalls, _, err := client.Generate(context.Background(), messages, nil)
	require.NoError(t, err)
	assert.Equal(t, "已记录", text)
	assert.Empty(t, toolCalls)
}

func TestRegistry_NewClient(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterProvider("doubao", ProviderConfig{
		Type: "openai", BaseURL: "http://localhost:1", APIKey: "k",
	}))

	client, err := reg.NewClient("doubao", ClientOptions{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "m", client.GetModelName())

	_, err = reg.NewClient("ghost", ClientOptions{Model: "m"})
	assert.Error(t, err)
}

func TestRegistry_RegisterProviderValidation(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.RegisterProvider("bad", ProviderConfig{Type: "carrier-pigeon", BaseURL: "x"}))
	assert.Error(t, reg.RegisterProvider("", ProviderConfig{Type: "openai", BaseURL: "x"}))
	// Missing base_url fails validation.
	assert.Error(t, reg.RegisterProvider("no-url", ProviderConfig{Type: "openai"}))
}
