package flow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validFlowYAML = `
name: medical_agent
version: "1.0"
description: test flow
entry_node: intent_recognition
nodes:
  - name: intent_recognition
    type: agent
    config:
      prompt: prompts/intent.md
      model:
        provider: doubao
        name: doubao-seed-1-6-251015
  - name: record_node
    type: agent
    config:
      prompt: prompts/record.md
      model:
        provider: doubao
        name: doubao-seed-1-6-251015
      tools:
        - record_blood_pressure
edges:
  - from: intent_recognition
    to: record_node
    condition: "intent == 'record_blood_pressure' && confidence >= 0.8"
  - from: intent_recognition
    to: END
    condition: "intent == 'chat'"
  - from: record_node
    to: END
    condition: always
`

func writeFlow(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFlow(t, dir, validFlowYAML)

	def, err := ParseFile(path)
	require.NoError(t, err)

	assert.Equal(t, "medical_agent", def.Name)
	assert.Equal(t, "1.0", def.Version)
	assert.Equal(t, "intent_recognition", def.EntryNode)
	assert.Len(t, def.Nodes, 2)
	assert.Len(t, def.Edges, 3)
	assert.Equal(t, dir, def.FlowDir)

	edges := def.OutgoingEdges("intent_recognition")
	require.Len(t, edges, 2)
	assert.Equal(t, "record_node", edges[0].ToNode)
	assert.False(t, edges[0].IsAlways())
}

func TestParseFile_Missing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "flow.yaml"))
	assert.Error(t, err)
}

func TestParseFile_StructuralViolations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			"missing entry node",
			`
name: broken
entry_node: nope
nodes:
  - name: a
    type: agent
    config: {}
edges: []
`,
		},
		{
			"edge to unknown node",
			`
name: broken
entry_node: a
nodes:
  - name: a
    type: agent
    config: {}
edges:
  - from: a
    to: ghost
    condition: always
`,
		},
		{
			"mixed conditional and always edges",
			`
name: broken
entry_node: a
nodes:
  - name: a
    type: agent
    config: {}
  - name: b
    type: agent
    config: {}
edges:
  - from: a
    to: b
    condition: "intent == 'x'"
  - from: a
    to: END
    condition: always
`,
		},
		{
			"duplicate node name",
			`
name: broken
entry_node: a
nodes:
  - name: a
    type: agent
    config: {}
  - name: a
    type: agent
    config: {}
edges: []
`,
		},
		{
			"unsupported node type",
			`
name: broken
entry_node: a
nodes:
  - name: a
    type: webhook
    config: {}
edges: []
`,
		},
		{
			"no nodes",
			`
name: broken
entry_node: a
nodes: []
edges: []
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeFlow(t, dir, tt.yaml)

			_, err := ParseFile(path)
			require.Error(t, err)

			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Contains(t, parseErr.Error(), "broken")
		})
	}
}

func TestScanDir(t *testing.T) {
	root := t.TempDir()

	goodDir := filepath.Join(root, "medical_agent")
	require.NoError(t, os.MkdirAll(goodDir, 0755))
	writeFlow(t, goodDir, validFlowYAML)

	// A broken flow is skipped, not fatal.
	badDir := filepath.Join(root, "broken")
	require.NoError(t, os.MkdirAll(badDir, 0755))
	writeFlow(t, badDir, "name: broken\nentry_node: ghost\nnodes:\n  - name: a\n    type: agent\n    config: {}\nedges: []\n")

	// A directory without flow.yaml is ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))

	flows, err := ScanDir(root)
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Contains(t, flows, "medical_agent")
}

func TestScanDir_MissingRoot(t *testing.T) {
	flows, err := ScanDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, flows)
}

func TestLoadLoaderConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow_loader.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
flows:
  preload:
    - medical_agent
  lazy_load:
    - consult_agent
`), 0644))

	cfg, err := LoadLoaderConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"medical_agent"}, cfg.Flows.Preload)
	assert.Equal(t, []string{"consult_agent"}, cfg.Flows.LazyLoad)

	// Missing file yields empty config, no error.
	cfg, err = LoadLoaderConfig(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Flows.Preload)
}

func TestModelConfig_Validate(t *testing.T) {
	base := ModelConfig{Provider: "doubao", Name: "doubao-seed-1-6-251015"}

	t.Run("valid minimal", func(t *testing.T) {
		cfg := base
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing provider", func(t *testing.T) {
		cfg := base
		cfg.Provider = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad thinking type", func(t *testing.T) {
		cfg := base
		cfg.Thinking = &ThinkingField{Type: "maybe"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad reasoning effort", func(t *testing.T) {
		cfg := base
		cfg.ReasoningEffort = "extreme"
		assert.Error(t, cfg.Validate())
	})

	t.Run("disabled thinking requires minimal effort", func(t *testing.T) {
		cfg := base
		cfg.Thinking = &ThinkingField{Type: "disabled"}
		cfg.ReasoningEffort = "high"
		assert.Error(t, cfg.Validate())

		cfg.ReasoningEffort = "minimal"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("enabled thinking excludes minimal effort", func(t *testing.T) {
		cfg := base
		cfg.Thinking = &ThinkingField{Type: "enabled"}
		cfg.ReasoningEffort = "minimal"
		assert.Error(t, cfg.Validate())

		cfg.ReasoningEffort = "medium"
		assert.NoError(t, cfg.Validate())
	})
}

func TestModelConfig_SetDefaults(t *testing.T) {
	cfg := ModelConfig{Provider: "doubao", Name: "m"}
	cfg.SetDefaults()
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Zero(t, cfg.TimeoutSeconds)

	// Enabled thinking defaults the timeout to 30 minutes.
	deep := ModelConfig{Provider: "doubao", Name: "m", Thinking: &ThinkingField{Type: "enabled"}}
	deep.SetDefaults()
	assert.Equal(t, 1800, deep.TimeoutSeconds)

	// An explicit timeout is kept.
	explicit := ModelConfig{Provider: "doubao", Name: "m", Thinking: &ThinkingField{Type: "enabled"}, TimeoutSeconds: 600}
	explicit.SetDefaults()
	assert.Equal(t, 600, explicit.TimeoutSeconds)
}

func TestDecodeAgentNodeConfig(t *testing.T) {
	raw := map[string]any{
		"prompt": "prompts/intent.md",
		"model": map[string]any{
			"provider":    "doubao",
			"name":        "doubao-seed-1-6-251015",
			"temperature": 0.1,
			"thinking":    map[string]any{"type": "disabled"},
			"reasoning_effort": "minimal",
		},
		"tools": []any{"record_blood_pressure"},
	}

	cfg, err := DecodeAgentNodeConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, "prompts/intent.md", cfg.Prompt)
	assert.Equal(t, "doubao", cfg.Model.Provider)
	assert.Equal(t, 0.1, cfg.Model.Temperature)
	require.NotNil(t, cfg.Model.Thinking)
	assert.Equal(t, "disabled", cfg.Model.Thinking.Type)
	assert.Equal(t, []string{"record_blood_pressure"}, cfg.Tools)

	// Missing prompt is a decode error.
	_, err = DecodeAgentNodeConfig(map[string]any{"model": map[string]any{"provider": "p", "name": "n"}})
	assert.Error(t, err)
}

func TestDecodeRetrievalNodeConfig(t *testing.T) {
	cfg, err := DecodeRetrievalNodeConfig(map[string]any{
		"tables": []any{"qa_examples"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"qa_examples"}, cfg.Tables)
	assert.Equal(t, 15, cfg.TopK)
	assert.Equal(t, 5, cfg.MinResults)
}
