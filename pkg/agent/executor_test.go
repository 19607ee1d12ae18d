package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GD25Workhome/gd25-biz-agent/pkg/flow"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/llms"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/prompt"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/repository"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/tools"
)

// scriptedLLM replays a fixed sequence of turns.
type scriptedLLM struct {
	turns []scriptedTurn
	calls int
	seen  [][]llms.Message
}

type scriptedTurn struct {
	text      string
	toolCalls []llms.ToolCall
	err       error
}

func (s *scriptedLLM) Generate(ctx context.Context, messages []llms.Message, toolDefs []llms.ToolDefinition) (string, []llms.ToolCall, int, error) {
	s.seen = append(s.seen, messages)
	if s.calls >= len(s.turns) {
		return "", nil, 0, errors.New("script exhausted")
	}
	turn := s.turns[s.calls]
	s.calls++
	return turn.text, turn.toolCalls, 10, turn.err
}

func (s *scriptedLLM) GetModelName() string { return "scripted" }
func (s *scriptedLLM) Close() error         { return nil }

func newExecutor(llm llms.LLMProvider, reg *tools.Registry, toolNames []string) *Executor {
	_, defs := reg.Resolve(toolNames)
	return &Executor{
		llm:            llm,
		toolDefs:       defs,
		toolRegistry:   reg,
		promptCacheKey: "key",
		maxIterations:  defaultMaxIterations,
	}
}

func ambientCtx(tokenID string) context.Context {
	return tools.WithRuntime(context.Background(), tools.RuntimeContext{TokenID: tokenID})
}

func TestExecutor_NoToolCalls(t *testing.T) {
	llm := &scriptedLLM{turns: []scriptedTurn{{text: "你好！"}}}
	reg := tools.NewRegistry()

	exec := newExecutor(llm, reg, nil)
	output, msgs, err := exec.Invoke(ambientCtx("u1"),
		[]llms.Message{llms.UserMessage("hi")}, llms.SystemMessage("sys"))
	require.NoError(t, err)

	assert.Equal(t, "你好！", output)
	assert.Equal(t, 1, llm.calls)
	// system + user + assistant
	require.Len(t, msgs, 3)
	assert.Equal(t, llms.RoleSystem, msgs[0].Role)
	assert.Equal(t, llms.RoleAssistant, msgs[2].Role)
}

func TestExecutor_ToolCallLoop(t *testing.T) {
	store := repository.NewMemoryStore()
	reg := tools.NewRegistry()
	require.NoError(t, tools.RegisterDomainTools(reg, store))

	llm := &scriptedLLM{turns: []scriptedTurn{
		{
			text: "好的，我来记录。",
			toolCalls: []llms.ToolCall{{
				ID:   "call_1",
				Name: "record_blood_pressure",
				Arguments: map[string]any{
					"systolic":  float64(120),
					"diastolic": float64(80),
				},
			}},
		},
		{text: "已为您记录血压 120/80。"},
	}}

	exec := newExecutor(llm, reg, []string{"record_blood_pressure"})
	output, msgs, err := exec.Invoke(ambientCtx("u1"),
		[]llms.Message{llms.UserMessage("我想记录：收缩压120，舒张压80")},
		llms.SystemMessage("sys"))
	require.NoError(t, err)

	assert.Equal(t, 2, llm.calls)
	assert.Contains(t, output, "120")

	// The second call saw the assistant tool-call message and the tool
	// result.
	secondCall := llm.seen[1]
	var sawToolMsg bool
	for _, msg := range secondCall {
		if msg.Role == llms.RoleTool {
			sawToolMsg = true
			assert.Equal(t, "call_1", msg.ToolCallID)
			assert.Equal(t, "record_blood_pressure", msg.Name)
			assert.Contains(t, msg.Content, "120")
		}
	}
	assert.True(t, sawToolMsg)

	// The record landed, scoped to the ambient token.
	records, err := store.BloodPressure.GetRecent(context.Background(), "u1",
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 120, records[0].Systolic)

	// The returned trace contains the tool exchange.
	var traceHasTool bool
	for _, msg := range msgs {
		if msg.Role == llms.RoleTool {
			traceHasTool = true
		}
	}
	assert.True(t, traceHasTool)
}

func TestExecutor_ToolFailureContinuesLoop(t *testing.T) {
	store := repository.NewMemoryStore()
	reg := tools.NewRegistry()
	require.NoError(t, tools.RegisterDomainTools(reg, store))

	llm := &scriptedLLM{turns: []scriptedTurn{
		{
			toolCalls: []llms.ToolCall{{
				ID:   "call_1",
				Name: "record_blood_pressure",
				// Missing required arguments → tool returns an error string.
				Arguments: map[string]any{},
			}},
		},
		{text: "请告诉我您的收缩压和舒张压数值。"},
	}}

	exec := newExecutor(llm, reg, []string{"record_blood_pressure"})
	output, _, err := exec.Invoke(ambientCtx("u1"),
		[]llms.Message{llms.UserMessage("记录血压")}, llms.SystemMessage("sys"))
	require.NoError(t, err)

	// The failure went back to the model as a tool message and the loop
	// continued to a final answer.
	assert.Equal(t, 2, llm.calls)
	assert.Contains(t, output, "收缩压")

	secondCall := llm.seen[1]
	last := secondCall[len(secondCall)-1]
	assert.Equal(t, llms.RoleTool, last.Role)
	assert.Contains(t, last.Content, "错误")
}

func TestExecutor_LLMErrorAborts(t *testing.T) {
	llm := &scriptedLLM{turns: []scriptedTurn{{err: errors.New("provider down")}}}
	exec := newExecutor(llm, tools.NewRegistry(), nil)

	_, _, err := exec.Invoke(ambientCtx("u1"),
		[]llms.Message{llms.UserMessage("hi")}, llms.SystemMessage("sys"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")
}

func TestExecutor_IterationLimit(t *testing.T) {
	// The model calls an unknown tool forever; the loop must stop at the
	// cap instead of spinning.
	turns := make([]scriptedTurn, defaultMaxIterations)
	for i := range turns {
		turns[i] = scriptedTurn{
			text:      "再试一次",
			toolCalls: []llms.ToolCall{{ID: "c", Name: "ghost", Arguments: map[string]any{}}},
		}
	}
	llm := &scriptedLLM{turns: turns}

	exec := newExecutor(llm, tools.NewRegistry(), nil)
	output, _, err := exec.Invoke(ambientCtx("u1"),
		[]llms.Message{llms.UserMessage("hi")}, llms.SystemMessage("sys"))
	require.NoError(t, err)
	assert.Equal(t, defaultMaxIterations, llm.calls)
	assert.Equal(t, "再试一次", output)
}

func TestFactory_CreateAgent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "intent.md"), []byte("prompt {user_info}"), 0644))

	llmRegistry := llms.NewRegistry()
	require.NoError(t, llmRegistry.RegisterProvider("doubao", llms.ProviderConfig{
		Type:    "openai",
		BaseURL: "http://localhost:9999/v1",
		APIKey:  "test",
	}))

	toolRegistry := tools.NewRegistry()
	require.NoError(t, tools.RegisterDomainTools(toolRegistry, repository.NewMemoryStore()))

	promptMgr := prompt.NewManager(t.TempDir())
	factory := NewFactory(llmRegistry, toolRegistry, promptMgr)

	runner, err := factory.CreateAgent(&flow.AgentNodeConfig{
		Prompt: "intent.md",
		Model:  flow.ModelConfig{Provider: "doubao", Name: "m", Temperature: 0.1},
		Tools:  []string{"record_blood_pressure", "unknown_tool"},
	}, dir)
	require.NoError(t, err)

	// The template was preloaded and keyed.
	content, err := promptMgr.GetPromptByKey(runner.PromptCacheKey())
	require.NoError(t, err)
	assert.Equal(t, "prompt {user_info}", content)
}

func TestFactory_UnknownProvider(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p.md"), []byte("x"), 0644))

	factory := NewFactory(llms.NewRegistry(), tools.NewRegistry(), prompt.NewManager(t.TempDir()))
	_, err := factory.CreateAgent(&flow.AgentNodeConfig{
		Prompt: "p.md",
		Model:  flow.ModelConfig{Provider: "ghost", Name: "m"},
	}, dir)
	assert.Error(t, err)
}
