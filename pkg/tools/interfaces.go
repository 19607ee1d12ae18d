// Package tools provides the tool system: the process-wide registry, the
// ambient runtime context that scopes every invocation to the calling
// user, and the domain tools (blood pressure, medication, symptom,
// health event).
package tools

import (
	"context"
	"time"

	"github.com/GD25Workhome/gd25-biz-agent/pkg/llms"
)

// ============================================================================
// TOOL SYSTEM INTERFACES
// ============================================================================

// ToolInfo represents metadata about a tool.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters,omitempty"`
}

// ToolParameter represents a tool parameter definition.
type ToolParameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// ToolResult represents the result of a tool execution. Content is the
// string handed back to the LLM; user-level failures set Success=false
// and put the explanation in Content so the model can recover.
type ToolResult struct {
	Success       bool          `json:"success"`
	Content       string        `json:"content,omitempty"`
	Error         string        `json:"error,omitempty"`
	ToolName      string        `json:"tool_name"`
	ExecutionTime time.Duration `json:"execution_time,omitempty"`
}

// Tool represents a common interface for all tools.
type Tool interface {
	// GetInfo returns metadata about the tool
	GetInfo() ToolInfo

	// Execute runs the tool with the given arguments. Implementations
	// return user-level failures inside the ToolResult, never as errors.
	Execute(ctx context.Context, args map[string]any) (ToolResult, error)
}

// Definition converts tool metadata into the JSON-schema form the LLM
// providers expect.
func (info ToolInfo) Definition() llms.ToolDefinition {
	properties := make(map[string]any, len(info.Parameters))
	required := []string{}

	for _, param := range info.Parameters {
		prop := map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if len(param.Enum) > 0 {
			prop["enum"] = param.Enum
		}
		properties[param.Name] = prop
		if param.Required {
			required = append(required, param.Name)
		}
	}

	return llms.ToolDefinition{
		Name:        info.Name,
		Description: info.Description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}
