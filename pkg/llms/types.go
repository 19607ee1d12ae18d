// Package llms provides LLM provider implementations and the shared
// message types used by the agent executor and the graph nodes.
package llms

// Message roles. The universal format for multi-turn conversations with
// tool support, shared across the OpenAI-compatible and Anthropic providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single message in a conversation.
type Message struct {
	Role       string     `json:"role"`                   // "user", "assistant", "system", "tool"
	Content    string     `json:"content,omitempty"`      // Text content
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // Tool calls (from assistant)
	ToolCallID string     `json:"tool_call_id,omitempty"` // Tool call ID (for tool role)
	Name       string     `json:"name,omitempty"`         // Tool name (for tool role)
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolDefinition represents a tool/function that can be called.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// ToolCall represents a tool call requested by the LLM.
type ToolCall struct {
	ID        string         `json:"id"`        // Unique identifier for this call
	Name      string         `json:"name"`      // Tool name
	Arguments map[string]any `json:"arguments"` // Parsed arguments
	RawArgs   string         `json:"raw_args"`  // Original JSON string
}

// ThinkingConfig mirrors the per-node thinking setting forwarded to
// providers that accept it (doubao-style "thinking" request field).
type ThinkingConfig struct {
	Type string `json:"type"` // "enabled", "disabled", "auto"
}
