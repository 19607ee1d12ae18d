// Package flow provides flow definitions, the YAML parser and the edge
// condition evaluator. The manager that caches compiled graphs lives in
// package graph.
package flow

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Node kinds supported by the graph builder.
const (
	NodeTypeAgent     = "agent"
	NodeTypeRetrieval = "retrieval"
)

// TerminalNode is the reserved edge target that ends a flow.
const TerminalNode = "END"

// ConditionAlways marks an unconditional edge.
const ConditionAlways = "always"

// FlowDefinition is the parsed, validated form of one flow.yaml.
// Immutable after loading.
type FlowDefinition struct {
	Name        string           `yaml:"name"`
	Version     string           `yaml:"version"`
	Description string           `yaml:"description,omitempty"`
	EntryNode   string           `yaml:"entry_node"`
	Nodes       []NodeDefinition `yaml:"nodes"`
	Edges       []EdgeDefinition `yaml:"edges"`

	// FlowDir is the absolute directory the flow.yaml was loaded from,
	// used to resolve prompt template paths. Not part of the YAML schema.
	FlowDir string `yaml:"-"`
}

// NodeDefinition declares one node; Config is interpreted by Type.
type NodeDefinition struct {
	Name   string         `yaml:"name"`
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config"`
}

// EdgeDefinition declares one edge with a guard condition.
type EdgeDefinition struct {
	FromNode  string `yaml:"from"`
	ToNode    string `yaml:"to"`
	Condition string `yaml:"condition"`
}

// IsAlways reports whether the edge fires unconditionally.
func (e *EdgeDefinition) IsAlways() bool {
	return e.Condition == ConditionAlways
}

// ModelConfig is the per-node model configuration.
type ModelConfig struct {
	Provider        string         `yaml:"provider" mapstructure:"provider"`
	Name            string         `yaml:"name" mapstructure:"name"`
	Temperature     float64        `yaml:"temperature" mapstructure:"temperature"`
	Thinking        *ThinkingField `yaml:"thinking,omitempty" mapstructure:"thinking"`
	ReasoningEffort string         `yaml:"reasoning_effort,omitempty" mapstructure:"reasoning_effort"`
	TimeoutSeconds  int            `yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// ThinkingField is the thinking-mode setting ({type: enabled|disabled|auto}).
type ThinkingField struct {
	Type string `yaml:"type" mapstructure:"type"`
}

// Validate checks the value domains and the thinking/reasoning_effort
// coupling: disabled thinking only pairs with minimal effort, enabled
// thinking excludes minimal effort.
func (c *ModelConfig) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("model provider is required")
	}
	if c.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if c.Thinking != nil {
		switch c.Thinking.Type {
		case "enabled", "disabled", "auto":
		default:
			return fmt.Errorf("thinking.type must be 'enabled', 'disabled' or 'auto', got: %s", c.Thinking.Type)
		}
	}
	if c.ReasoningEffort != "" {
		switch c.ReasoningEffort {
		case "minimal", "low", "medium", "high":
		default:
			return fmt.Errorf("reasoning_effort must be 'minimal', 'low', 'medium' or 'high', got: %s", c.ReasoningEffort)
		}
	}
	if c.Thinking != nil && c.ReasoningEffort != "" {
		if c.Thinking.Type == "disabled" && c.ReasoningEffort != "minimal" {
			return fmt.Errorf("reasoning_effort must be 'minimal' when thinking.type is 'disabled', got: %s", c.ReasoningEffort)
		}
		if c.Thinking.Type == "enabled" && c.ReasoningEffort == "minimal" {
			return fmt.Errorf("reasoning_effort cannot be 'minimal' when thinking.type is 'enabled'")
		}
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	return nil
}

// SetDefaults fills the temperature and the deep-thinking timeout.
func (c *ModelConfig) SetDefaults() {
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	// Deep thinking runs long; give it 30 minutes unless overridden.
	if c.TimeoutSeconds == 0 && c.Thinking != nil && c.Thinking.Type == "enabled" {
		c.TimeoutSeconds = 1800
	}
}

// AgentNodeConfig is the decoded config map of an agent node.
type AgentNodeConfig struct {
	Prompt string      `mapstructure:"prompt"` // template path, relative to the flow dir
	Model  ModelConfig `mapstructure:"model"`
	Tools  []string    `mapstructure:"tools"`
}

// Validate checks the agent node config.
func (c *AgentNodeConfig) Validate() error {
	if c.Prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model config validation failed: %w", err)
	}
	return nil
}

// RetrievalNodeConfig is the decoded config map of a retrieval node.
type RetrievalNodeConfig struct {
	Tables     []string `mapstructure:"tables"`      // example tables to search; empty means all
	TopK       int      `mapstructure:"top_k"`       // merged result cap
	MinResults int      `mapstructure:"min_results"` // threshold fallback target
}

// SetDefaults fills the retrieval limits.
func (c *RetrievalNodeConfig) SetDefaults() {
	if c.TopK == 0 {
		c.TopK = 15
	}
	if c.MinResults == 0 {
		c.MinResults = 5
	}
}

// DecodeAgentNodeConfig decodes a node's opaque config map into an
// AgentNodeConfig, applies defaults and validates.
func DecodeAgentNodeConfig(raw map[string]any) (*AgentNodeConfig, error) {
	cfg := &AgentNodeConfig{}
	if err := decodeNodeConfig(raw, cfg); err != nil {
		return nil, err
	}
	cfg.Model.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DecodeRetrievalNodeConfig decodes a node's opaque config map into a
// RetrievalNodeConfig and applies defaults.
func DecodeRetrievalNodeConfig(raw map[string]any) (*RetrievalNodeConfig, error) {
	cfg := &RetrievalNodeConfig{}
	if err := decodeNodeConfig(raw, cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	return cfg, nil
}

func decodeNodeConfig(input map[string]any, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("failed to decode node config: %w", err)
	}
	return nil
}

// Validate checks the structural invariants of a flow definition:
// non-empty nodes, unique node names, known node types, entry node
// membership, edge endpoint membership, and the all-always /
// all-conditional rule per source node.
func (f *FlowDefinition) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("flow name is required")
	}
	if len(f.Nodes) == 0 {
		return fmt.Errorf("flow '%s' has no nodes", f.Name)
	}

	nodeNames := make(map[string]bool, len(f.Nodes))
	for _, node := range f.Nodes {
		if node.Name == "" {
			return fmt.Errorf("flow '%s' has a node with no name", f.Name)
		}
		if nodeNames[node.Name] {
			return fmt.Errorf("flow '%s' has duplicate node name: %s", f.Name, node.Name)
		}
		if node.Type != NodeTypeAgent && node.Type != NodeTypeRetrieval {
			return fmt.Errorf("flow '%s' node '%s' has unsupported type: %s", f.Name, node.Name, node.Type)
		}
		nodeNames[node.Name] = true
	}

	if f.EntryNode == "" {
		return fmt.Errorf("flow '%s' has no entry_node", f.Name)
	}
	if !nodeNames[f.EntryNode] {
		return fmt.Errorf("flow '%s' entry_node '%s' is not a declared node", f.Name, f.EntryNode)
	}

	conditional := make(map[string]bool)
	always := make(map[string]bool)
	for _, edge := range f.Edges {
		if !nodeNames[edge.FromNode] {
			return fmt.Errorf("flow '%s' edge references unknown from node: %s", f.Name, edge.FromNode)
		}
		if edge.ToNode != TerminalNode && !nodeNames[edge.ToNode] {
			return fmt.Errorf("flow '%s' edge references unknown to node: %s", f.Name, edge.ToNode)
		}
		if edge.Condition == "" {
			return fmt.Errorf("flow '%s' edge %s -> %s has no condition", f.Name, edge.FromNode, edge.ToNode)
		}
		if edge.IsAlways() {
			always[edge.FromNode] = true
		} else {
			conditional[edge.FromNode] = true
		}
	}

	for from := range conditional {
		if always[from] {
			return fmt.Errorf("flow '%s' node '%s' mixes conditional and always edges", f.Name, from)
		}
	}

	return nil
}

// OutgoingEdges returns the edges leaving a node, in declaration order.
func (f *FlowDefinition) OutgoingEdges(node string) []EdgeDefinition {
	var edges []EdgeDefinition
	for _, edge := range f.Edges {
		if edge.FromNode == node {
			edges = append(edges, edge)
		}
	}
	return edges
}

// Node returns the node definition by name.
func (f *FlowDefinition) Node(name string) (NodeDefinition, bool) {
	for _, node := range f.Nodes {
		if node.Name == name {
			return node, true
		}
	}
	return NodeDefinition{}, false
}
