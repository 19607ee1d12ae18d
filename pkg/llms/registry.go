package llms

import (
	"context"
	"fmt"

	"github.com/GD25Workhome/gd25-biz-agent/pkg/registry"
)

// LLMProvider is the interface every model client implements.
// Generate is a pure request/response call: messages plus tool specs in,
// one assistant message (text and/or tool calls) out. Providers never
// retry; retry policy belongs to callers that can afford it.
type LLMProvider interface {
	// Generate generates a response given conversation messages and tool
	// definitions. Returns the assistant text, any tool calls, and the
	// total tokens used.
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (string, []ToolCall, int, error)

	// GetModelName returns the model name
	GetModelName() string

	// Close closes the provider and releases resources
	Close() error
}

// ProviderConfig holds per-provider credentials and endpoint settings.
// Model-level settings (name, temperature, thinking, timeout) come from the
// flow node config, not from here.
type ProviderConfig struct {
	Type      string `yaml:"type"`       // "openai" (OpenAI-compatible: doubao, deepseek, openai) or "anthropic"
	BaseURL   string `yaml:"base_url"`   // API endpoint
	APIKey    string `yaml:"api_key"`    // API key (usually via ${ENV} expansion)
	MaxTokens int    `yaml:"max_tokens"` // Max completion tokens
}

// Validate implements config validation for ProviderConfig.
func (c *ProviderConfig) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("type is required")
	}
	if c.Type != "openai" && c.Type != "anthropic" {
		return fmt.Errorf("unsupported provider type: %s", c.Type)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	return nil
}

// SetDefaults implements config defaults for ProviderConfig.
func (c *ProviderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "openai"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
}

// ClientOptions carries the model-level settings resolved from a flow
// node's model config.
type ClientOptions struct {
	Model           string
	Temperature     float64
	Thinking        *ThinkingConfig
	ReasoningEffort string
	TimeoutSeconds  int
}

// Registry maps provider names (as referenced by flow node configs, e.g.
// "doubao") to their credential configs and builds clients on demand.
type Registry struct {
	*registry.BaseRegistry[ProviderConfig]
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[ProviderConfig](),
	}
}

// RegisterProvider validates and registers a provider config under a name.
func (r *Registry) RegisterProvider(name string, cfg ProviderConfig) error {
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid provider config '%s': %w", name, err)
	}
	return r.Register(name, cfg)
}

// NewClient builds an LLM client for the named provider with the given
// model-level options.
func (r *Registry) NewClient(name string, opts ClientOptions) (LLMProvider, error) {
	cfg, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("LLM provider '%s' not found", name)
	}

	switch cfg.Type {
	case "openai":
		return NewOpenAIClient(cfg, opts)
	case "anthropic":
		return NewAnthropicClient(cfg, opts)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}
}
