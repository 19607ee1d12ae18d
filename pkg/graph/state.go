// Package graph compiles flow definitions into executable state graphs
// and runs them: node materialization, edge routing, per-turn state
// merging, and session-keyed checkpointing.
package graph

import (
	"github.com/GD25Workhome/gd25-biz-agent/pkg/llms"
)

// FlowState is the per-turn state threaded through the graph. Nodes treat
// it as copy-on-write: they Clone, apply additive updates, and return the
// clone. HistoryMessages is never mutated inside a turn; FlowMsgs grows
// monotonically; PromptVars and EdgesVar only gain keys.
type FlowState struct {
	CurrentMessage  *llms.Message  // the single new human message for this turn
	HistoryMessages []llms.Message // prior persisted conversation
	FlowMsgs        []llms.Message // intermediate assistant/tool outputs of this turn

	SessionID string
	TokenID   string
	TraceID   string

	Intent            string
	Confidence        float64
	NeedClarification bool

	PromptVars map[string]any // template variables for system prompts
	EdgesVar   map[string]any // scalars consumed by edge conditions

	// Degraded marks a turn that lost a node to an LLM failure but still
	// returns whatever FlowMsgs accumulated.
	Degraded bool
}

// NewFlowState builds the initial state for a turn.
func NewFlowState(sessionID, tokenID, traceID string) *FlowState {
	return &FlowState{
		SessionID:  sessionID,
		TokenID:    tokenID,
		TraceID:    traceID,
		PromptVars: make(map[string]any),
		EdgesVar:   make(map[string]any),
	}
}

// Clone returns a copy with independent slices and maps. The messages
// themselves are value types and safe to share.
func (s *FlowState) Clone() *FlowState {
	clone := *s

	clone.HistoryMessages = make([]llms.Message, len(s.HistoryMessages))
	copy(clone.HistoryMessages, s.HistoryMessages)

	clone.FlowMsgs = make([]llms.Message, len(s.FlowMsgs))
	copy(clone.FlowMsgs, s.FlowMsgs)

	clone.PromptVars = make(map[string]any, len(s.PromptVars))
	for k, v := range s.PromptVars {
		clone.PromptVars[k] = v
	}

	clone.EdgesVar = make(map[string]any, len(s.EdgesVar))
	for k, v := range s.EdgesVar {
		clone.EdgesVar[k] = v
	}

	return &clone
}

// ConversationMessages returns history + current message, the sequence
// handed to an agent node's LLM call.
func (s *FlowState) ConversationMessages() []llms.Message {
	msgs := make([]llms.Message, 0, len(s.HistoryMessages)+1)
	msgs = append(msgs, s.HistoryMessages...)
	if s.CurrentMessage != nil {
		msgs = append(msgs, *s.CurrentMessage)
	}
	return msgs
}

// LastAssistantMessage returns the final assistant message of the turn,
// scanning FlowMsgs from the back.
func (s *FlowState) LastAssistantMessage() (llms.Message, bool) {
	for i := len(s.FlowMsgs) - 1; i >= 0; i-- {
		if s.FlowMsgs[i].Role == llms.RoleAssistant {
			return s.FlowMsgs[i], true
		}
	}
	return llms.Message{}, false
}
