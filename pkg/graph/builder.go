package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/GD25Workhome/gd25-biz-agent/pkg/flow"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/llms"
)

// NoExamplesFallback is written to prompt_vars["retrieved_examples"]
// whenever retrieval yields nothing or fails; retrieval never aborts a
// turn.
const NoExamplesFallback = "（暂无相关示例）"

// IntentNodeName gets special treatment: the agent's textual output is
// scanned for a JSON object carrying intent / confidence /
// need_clarification, which feed the edge router.
const IntentNodeName = "intent_recognition"

// NodeFunc executes one node against the current state and returns the
// updated state. Implementations follow copy-on-write: clone, append,
// return.
type NodeFunc func(ctx context.Context, state *FlowState) (*FlowState, error)

// routerFunc picks the next node name (or flow.TerminalNode) from state.
type routerFunc func(state *FlowState) string

// AgentRunner is a built agent node executor (a ReAct loop bound to a
// model and tool set).
type AgentRunner interface {
	// Invoke runs the loop over the given conversation with the composed
	// system message and returns the final assistant output plus the full
	// message trace.
	Invoke(ctx context.Context, msgs []llms.Message, sysMsg llms.Message) (string, []llms.Message, error)

	// PromptCacheKey returns the key of the cached system prompt template.
	PromptCacheKey() string
}

// AgentBuilder constructs AgentRunners from agent node configs.
type AgentBuilder interface {
	CreateAgent(cfg *flow.AgentNodeConfig, flowDir string) (AgentRunner, error)
}

// SystemPromptBuilder composes the turn-time system message from a cached
// template key and the state's prompt variables.
type SystemPromptBuilder interface {
	BuildSystemMessage(cacheKey string, promptVars map[string]any) (string, error)
}

// ExampleRetriever embeds the query, searches the example tables and
// returns the formatted examples block. Implementations degrade
// internally: on any failure they return the fallback string, never an
// error that would abort the turn.
type ExampleRetriever interface {
	RetrieveFormatted(ctx context.Context, queryText string, keywords []string, cfg *flow.RetrievalNodeConfig) string
}

// CompileError is returned for node/edge inconsistencies detected while
// materializing a graph.
type CompileError struct {
	Flow    string
	Message string
	Err     error
}

func (e *CompileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("compile flow %q: %s: %v", e.Flow, e.Message, e.Err)
	}
	return fmt.Sprintf("compile flow %q: %s", e.Flow, e.Message)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Builder materializes flow definitions into compiled graphs.
type Builder struct {
	agents    AgentBuilder
	prompts   SystemPromptBuilder
	retriever ExampleRetriever
}

// NewBuilder creates a graph builder. The retriever may be nil when no
// vector store is configured; retrieval nodes then always fall back.
func NewBuilder(agents AgentBuilder, prompts SystemPromptBuilder, retriever ExampleRetriever) *Builder {
	return &Builder{
		agents:    agents,
		prompts:   prompts,
		retriever: retriever,
	}
}

// Build compiles a flow definition: one executable function per node, a
// router per node with outgoing edges (conditional or a single always
// edge), the entry point, and a fresh in-memory checkpointer.
func (b *Builder) Build(def *flow.FlowDefinition) (*CompiledGraph, error) {
	nodes := make(map[string]NodeFunc, len(def.Nodes))
	for _, nodeDef := range def.Nodes {
		fn, err := b.buildNodeFunc(def, nodeDef)
		if err != nil {
			return nil, &CompileError{Flow: def.Name, Message: fmt.Sprintf("failed to build node '%s'", nodeDef.Name), Err: err}
		}
		nodes[nodeDef.Name] = fn
	}

	routers := make(map[string]routerFunc, len(def.Nodes))
	for _, nodeDef := range def.Nodes {
		edges := def.OutgoingEdges(nodeDef.Name)
		if len(edges) == 0 {
			continue
		}

		var conditional, always []flow.EdgeDefinition
		for _, edge := range edges {
			if edge.IsAlways() {
				always = append(always, edge)
			} else {
				conditional = append(conditional, edge)
			}
		}

		if len(conditional) > 0 && len(always) > 0 {
			return nil, &CompileError{Flow: def.Name, Message: fmt.Sprintf("node '%s' mixes conditional and always edges", nodeDef.Name)}
		}

		if len(conditional) > 0 {
			routers[nodeDef.Name] = conditionalRouter(conditional)
		} else {
			// A plain edge is a direct transition; multiple always edges
			// from one node would be ambiguous.
			if len(always) > 1 {
				return nil, &CompileError{Flow: def.Name, Message: fmt.Sprintf("node '%s' has multiple always edges", nodeDef.Name)}
			}
			target := always[0].ToNode
			routers[nodeDef.Name] = func(*FlowState) string { return target }
		}
	}

	slog.Info("Compiled flow graph", "flow", def.Name, "nodes", len(nodes))

	return &CompiledGraph{
		def:          def,
		nodes:        nodes,
		routers:      routers,
		entry:        def.EntryNode,
		checkpointer: NewMemoryCheckpointer(),
		maxSteps:     defaultMaxSteps,
	}, nil
}

// conditionalRouter evaluates conditions in declaration order; the first
// truthy edge wins, none matching routes to the terminal.
func conditionalRouter(edges []flow.EdgeDefinition) routerFunc {
	return func(state *FlowState) string {
		for _, edge := range edges {
			if flow.EvaluateCondition(edge.Condition, state.EdgesVar) {
				return edge.ToNode
			}
		}
		return flow.TerminalNode
	}
}

func (b *Builder) buildNodeFunc(def *flow.FlowDefinition, nodeDef flow.NodeDefinition) (NodeFunc, error) {
	switch nodeDef.Type {
	case flow.NodeTypeAgent:
		return b.buildAgentNode(def, nodeDef)
	case flow.NodeTypeRetrieval:
		return b.buildRetrievalNode(nodeDef)
	default:
		return nil, fmt.Errorf("unsupported node type: %s", nodeDef.Type)
	}
}

func (b *Builder) buildAgentNode(def *flow.FlowDefinition, nodeDef flow.NodeDefinition) (NodeFunc, error) {
	cfg, err := flow.DecodeAgentNodeConfig(nodeDef.Config)
	if err != nil {
		return nil, err
	}

	runner, err := b.agents.CreateAgent(cfg, def.FlowDir)
	if err != nil {
		return nil, err
	}

	nodeName := nodeDef.Name

	return func(ctx context.Context, state *FlowState) (*FlowState, error) {
		msgs := state.ConversationMessages()
		if len(msgs) == 0 {
			slog.Warn("Agent node has no messages, skipping", "node", nodeName)
			return state, nil
		}

		sysContent, err := b.prompts.BuildSystemMessage(runner.PromptCacheKey(), state.PromptVars)
		if err != nil {
			return nil, fmt.Errorf("node '%s': failed to build system message: %w", nodeName, err)
		}

		output, _, err := runner.Invoke(ctx, msgs, llms.SystemMessage(sysContent))
		if err != nil {
			return nil, fmt.Errorf("node '%s': agent invocation failed: %w", nodeName, err)
		}

		newState := state.Clone()
		if nodeName == IntentNodeName {
			applyIntentRecognition(newState, output)
		}
		newState.FlowMsgs = append(newState.FlowMsgs, llms.AssistantMessage(output))
		return newState, nil
	}, nil
}

func (b *Builder) buildRetrievalNode(nodeDef flow.NodeDefinition) (NodeFunc, error) {
	cfg, err := flow.DecodeRetrievalNodeConfig(nodeDef.Config)
	if err != nil {
		return nil, err
	}

	nodeName := nodeDef.Name

	return func(ctx context.Context, state *FlowState) (*FlowState, error) {
		newState := state.Clone()

		queryText, _ := state.EdgesVar["query_text"].(string)
		if queryText == "" {
			// Fall back to the raw user input.
			if state.CurrentMessage != nil {
				queryText = state.CurrentMessage.Content
			} else if len(state.HistoryMessages) > 0 {
				last := state.HistoryMessages[len(state.HistoryMessages)-1]
				if last.Role == llms.RoleUser {
					queryText = last.Content
				}
			}
		}

		if queryText == "" || b.retriever == nil {
			slog.Warn("Retrieval node has no query text or retriever, using fallback", "node", nodeName)
			newState.PromptVars["retrieved_examples"] = NoExamplesFallback
			return newState, nil
		}

		keywords := extractKeywords(state.EdgesVar["keywords"])
		formatted := b.retriever.RetrieveFormatted(ctx, queryText, keywords, cfg)
		if formatted == "" {
			formatted = NoExamplesFallback
		}
		newState.PromptVars["retrieved_examples"] = formatted
		return newState, nil
	}, nil
}

// extractKeywords normalizes the edges_var "keywords" value, which may
// arrive as []string, []any, or a single string.
func extractKeywords(v any) []string {
	switch kw := v.(type) {
	case []string:
		return kw
	case []any:
		out := make([]string, 0, len(kw))
		for _, item := range kw {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if kw == "" {
			return nil
		}
		return []string{kw}
	}
	return nil
}

// applyIntentRecognition parses the agent's textual output for the first
// '{' .. last '}' JSON object and extracts intent, confidence and
// need_clarification into the state and edges_var. Anything unparseable
// resolves to the unclear defaults.
func applyIntentRecognition(state *FlowState, output string) {
	intent := "unclear"
	confidence := 0.0
	needClarification := false

	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start >= 0 && end > start {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(output[start:end+1]), &parsed); err == nil {
			if v, ok := parsed["intent"].(string); ok && v != "" {
				intent = v
			}
			if v, ok := parsed["confidence"]; ok {
				if n, ok := asJSONNumber(v); ok {
					confidence = n
				}
			}
			if v, ok := parsed["need_clarification"].(bool); ok {
				needClarification = v
			}
		} else {
			slog.Warn("Failed to parse intent recognition output", "error", err)
		}
	}

	state.Intent = intent
	state.Confidence = confidence
	state.NeedClarification = needClarification

	state.EdgesVar["intent"] = intent
	state.EdgesVar["confidence"] = confidence
	state.EdgesVar["need_clarification"] = needClarification

	slog.Debug("Intent recognition result",
		"intent", intent,
		"confidence", confidence,
		"need_clarification", needClarification)
}

func asJSONNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%f", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
