package flow

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ParseError is returned for malformed flow files and structural
// violations; it always names the offending flow (or file).
type ParseError struct {
	Flow    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flow %q: %s: %v", e.Flow, e.Message, e.Err)
	}
	return fmt.Sprintf("flow %q: %s", e.Flow, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseFile parses and validates one flow.yaml. The file's directory is
// recorded on the definition for prompt path resolution.
func ParseFile(path string) (*FlowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Flow: path, Message: "failed to read flow file", Err: err}
	}

	var def FlowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &ParseError{Flow: path, Message: "invalid YAML", Err: err}
	}
	if def.Version == "" {
		def.Version = "1.0"
	}

	absDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, &ParseError{Flow: def.Name, Message: "failed to resolve flow directory", Err: err}
	}
	def.FlowDir = absDir

	if err := def.Validate(); err != nil {
		return nil, &ParseError{Flow: def.Name, Message: "structural validation failed", Err: err}
	}

	slog.Info("Parsed flow definition", "flow", def.Name, "version", def.Version, "nodes", len(def.Nodes), "edges", len(def.Edges))
	return &def, nil
}

// ScanDir walks the flows root and parses every subdirectory's flow.yaml.
// Subdirectories without a flow.yaml and flows that fail to parse are
// skipped with a warning; the scan itself only fails when the root is
// unreadable.
func ScanDir(flowsDir string) (map[string]*FlowDefinition, error) {
	flows := make(map[string]*FlowDefinition)

	entries, err := os.ReadDir(flowsDir)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("Flows directory does not exist", "dir", flowsDir)
			return flows, nil
		}
		return nil, fmt.Errorf("failed to read flows directory %s: %w", flowsDir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		flowYAML := filepath.Join(flowsDir, entry.Name(), "flow.yaml")
		if _, err := os.Stat(flowYAML); err != nil {
			continue
		}

		def, err := ParseFile(flowYAML)
		if err != nil {
			slog.Warn("Skipping flow that failed to parse", "dir", entry.Name(), "error", err)
			continue
		}

		flows[def.Name] = def
	}

	return flows, nil
}

// LoaderConfig is the flow_loader.yaml schema: which flows compile at
// startup and which compile on first use.
type LoaderConfig struct {
	Flows struct {
		Preload  []string `yaml:"preload"`
		LazyLoad []string `yaml:"lazy_load"`
	} `yaml:"flows"`
}

// LoadLoaderConfig reads flow_loader.yaml. A missing file yields an
// empty config rather than an error.
func LoadLoaderConfig(path string) (*LoaderConfig, error) {
	cfg := &LoaderConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("Flow loader config not found, using defaults", "path", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read flow loader config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid flow loader config: %w", err)
	}
	return cfg, nil
}
