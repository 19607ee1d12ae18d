package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/GD25Workhome/gd25-biz-agent/pkg/llms"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/observability"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/registry"
)

// ToolRegistryError represents a tool registry error.
type ToolRegistryError struct {
	Component string
	Action    string
	Message   string
	Err       error
}

func (e *ToolRegistryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Component, e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Component, e.Action, e.Message)
}

func (e *ToolRegistryError) Unwrap() error {
	return e.Err
}

func NewToolRegistryError(component, action, message string, err error) *ToolRegistryError {
	return &ToolRegistryError{
		Component: component,
		Action:    action,
		Message:   message,
		Err:       err,
	}
}

// Registry is the process-wide name→tool map. Tools register during boot
// wiring; the registry is treated as immutable afterwards.
type Registry struct {
	*registry.BaseRegistry[Tool]
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Tool](),
	}
}

// RegisterTool adds a tool by its declared name. Duplicate registration
// is ignored with a warning rather than an error so repeated wiring of
// the same tool set stays harmless.
func (r *Registry) RegisterTool(tool Tool) error {
	info := tool.GetInfo()
	if info.Name == "" {
		return NewToolRegistryError("ToolRegistry", "RegisterTool", "tool name cannot be empty", nil)
	}

	if _, exists := r.Get(info.Name); exists {
		slog.Warn("Tool already registered, skipping duplicate", "tool", info.Name)
		return nil
	}

	if err := r.Register(info.Name, tool); err != nil {
		return NewToolRegistryError("ToolRegistry", "RegisterTool",
			fmt.Sprintf("failed to register tool %s", info.Name), err)
	}
	return nil
}

// GetTool retrieves a tool by name.
func (r *Registry) GetTool(name string) (Tool, error) {
	tool, exists := r.Get(name)
	if !exists {
		return nil, NewToolRegistryError("ToolRegistry", "GetTool",
			fmt.Sprintf("tool %s not found", name), nil)
	}
	return tool, nil
}

// ListTools returns metadata for all registered tools, sorted by name.
func (r *Registry) ListTools() []ToolInfo {
	var infos []ToolInfo
	for _, tool := range r.List() {
		infos = append(infos, tool.GetInfo())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Resolve maps tool names to tools and definitions; unknown names are
// skipped with a warning (the agent still runs with the tools it has).
func (r *Registry) Resolve(names []string) ([]Tool, []llms.ToolDefinition) {
	var resolved []Tool
	var defs []llms.ToolDefinition
	for _, name := range names {
		tool, exists := r.Get(name)
		if !exists {
			slog.Warn("Tool not registered, skipping", "tool", name)
			continue
		}
		resolved = append(resolved, tool)
		defs = append(defs, tool.GetInfo().Definition())
	}
	return resolved, defs
}

// ExecuteTool executes a tool by name with the given arguments. The
// result is always usable as a tool message; hard failures land in the
// result's Error field.
func (r *Registry) ExecuteTool(ctx context.Context, toolName string, args map[string]any) ToolResult {
	tool, err := r.GetTool(toolName)
	if err != nil {
		return ToolResult{
			Success:  false,
			Content:  fmt.Sprintf("错误：未知工具 %s", toolName),
			Error:    err.Error(),
			ToolName: toolName,
		}
	}

	start := time.Now()
	result, execErr := tool.Execute(ctx, args)
	result.ToolName = toolName
	result.ExecutionTime = time.Since(start)
	observability.ToolInvocationsTotal.WithLabelValues(toolName, strconv.FormatBool(execErr == nil && result.Success)).Inc()
	if execErr != nil {
		// Tools report user-level failures inside the result; an error
		// here is unexpected, but still must surface as text the model
		// can react to.
		result.Success = false
		result.Error = execErr.Error()
		if result.Content == "" {
			result.Content = fmt.Sprintf("错误：工具执行失败 - %v", execErr)
		}
	}
	return result
}
