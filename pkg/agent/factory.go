// Package agent provides the agent factory and the ReAct executor that
// backs every agent node: LLM call → tool dispatch → tool results → LLM,
// until the model stops calling tools or the step limit trips.
package agent

import (
	"fmt"
	"log/slog"

	"github.com/GD25Workhome/gd25-biz-agent/pkg/flow"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/graph"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/llms"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/prompt"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/tools"
)

// Factory builds agent executors from flow node configs.
type Factory struct {
	llms    *llms.Registry
	tools   *tools.Registry
	prompts *prompt.Manager
}

// NewFactory creates an agent factory over the process-wide registries.
func NewFactory(llmRegistry *llms.Registry, toolRegistry *tools.Registry, prompts *prompt.Manager) *Factory {
	return &Factory{
		llms:    llmRegistry,
		tools:   toolRegistry,
		prompts: prompts,
	}
}

// CreateAgent constructs the executor for one agent node:
//
//  1. preload and key the prompt template (the system message itself is
//     composed per turn, never baked into the executor)
//  2. resolve the node's tool names (unknown names are skipped with a
//     warning)
//  3. build the LLM client from the node's model config
func (f *Factory) CreateAgent(cfg *flow.AgentNodeConfig, flowDir string) (graph.AgentRunner, error) {
	cacheKey, err := f.prompts.CachedPrompt(cfg.Prompt, flowDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt template: %w", err)
	}

	agentTools, toolDefs := f.tools.Resolve(cfg.Tools)

	var thinking *llms.ThinkingConfig
	if cfg.Model.Thinking != nil {
		thinking = &llms.ThinkingConfig{Type: cfg.Model.Thinking.Type}
	}

	client, err := f.llms.NewClient(cfg.Model.Provider, llms.ClientOptions{
		Model:           cfg.Model.Name,
		Temperature:     cfg.Model.Temperature,
		Thinking:        thinking,
		ReasoningEffort: cfg.Model.ReasoningEffort,
		TimeoutSeconds:  cfg.Model.TimeoutSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	slog.Debug("Created agent executor",
		"prompt", cfg.Prompt,
		"model", cfg.Model.Name,
		"tools", len(agentTools))

	return &Executor{
		llm:            client,
		toolDefs:       toolDefs,
		toolRegistry:   f.tools,
		promptCacheKey: cacheKey,
		maxIterations:  defaultMaxIterations,
	}, nil
}
