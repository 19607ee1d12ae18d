// Package config provides the application configuration: typed sections
// with Validate/SetDefaults, loaded from YAML with environment variable
// expansion.
package config

import (
	"fmt"

	"github.com/GD25Workhome/gd25-biz-agent/pkg/llms"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/rag"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig                   `yaml:"server"`
	Logging  LoggingConfig                  `yaml:"logging"`
	LLMs     map[string]llms.ProviderConfig `yaml:"llms"`
	Database DatabaseConfig                 `yaml:"database"`
	VectorDB DatabaseConfig                 `yaml:"vector_db"`
	Embedder rag.EmbedderConfig             `yaml:"embedder"`
	Flows    FlowsConfig                    `yaml:"flows"`
}

// Validate implements Config.Validate for the root config.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config validation failed: %w", err)
	}
	for name, provider := range c.LLMs {
		if err := provider.Validate(); err != nil {
			return fmt.Errorf("LLM provider '%s' validation failed: %w", name, err)
		}
	}
	if c.Embedder.Host != "" {
		if err := c.Embedder.Validate(); err != nil {
			return fmt.Errorf("embedder config validation failed: %w", err)
		}
	}
	if err := c.Flows.Validate(); err != nil {
		return fmt.Errorf("flows config validation failed: %w", err)
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for the root config.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
	for name := range c.LLMs {
		provider := c.LLMs[name]
		provider.SetDefaults()
		c.LLMs[name] = provider
	}
	if c.Embedder.Host != "" {
		c.Embedder.SetDefaults()
	}
	c.Flows.SetDefaults()
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Validate implements Config.Validate for ServerConfig.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in (0, 65535]")
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for ServerConfig.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"` // "stderr", "stdout", or a file path
}

// Validate implements Config.Validate for LoggingConfig.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	switch c.Format {
	case "simple", "verbose":
	default:
		return fmt.Errorf("invalid log format: %s", c.Format)
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for LoggingConfig.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// DatabaseConfig carries a connection URL, normally via ${ENV} expansion.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// FlowsConfig locates the flow assets.
type FlowsConfig struct {
	Dir        string `yaml:"dir"`         // flows root (one subdirectory per flow)
	RuleDir    string `yaml:"rule_dir"`    // rule fragment directory
	LoaderPath string `yaml:"loader_path"` // flow_loader.yaml path
	Watch      bool   `yaml:"watch"`       // hot-reload on changes
}

// Validate implements Config.Validate for FlowsConfig.
func (c *FlowsConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("flows dir is required")
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for FlowsConfig.
func (c *FlowsConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "config/flows"
	}
	if c.RuleDir == "" {
		c.RuleDir = c.Dir + "/flow_rule"
	}
	if c.LoaderPath == "" {
		c.LoaderPath = "config/flow_loader.yaml"
	}
}
