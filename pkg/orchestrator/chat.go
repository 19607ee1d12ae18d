// Package orchestrator wires the per-turn chat entry point: it resolves
// the session to a compiled flow, seeds the flow state, binds the
// ambient identity, invokes the graph and extracts the reply.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GD25Workhome/gd25-biz-agent/pkg/contexts"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/graph"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/llms"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/observability"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/tools"
)

// DefaultApology is returned when a turn produces no assistant message.
const DefaultApology = "抱歉，我没有收到回复。"

// defaultTurnTimeout bounds one whole chat turn.
const defaultTurnTimeout = 120 * time.Second

// HistoryMessage is one prior turn supplied by the caller.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the engine-level chat input.
type ChatRequest struct {
	Message             string           `json:"message"`
	SessionID           string           `json:"session_id"`
	TokenID             string           `json:"token_id"`
	TraceID             string           `json:"trace_id,omitempty"`
	ConversationHistory []HistoryMessage `json:"conversation_history,omitempty"`
	CurrentDate         string           `json:"current_date,omitempty"`

	// UserInfo overrides the token profile for this turn only. Accepts a
	// map or a JSON string (the wire format allows both).
	UserInfo any `json:"user_info,omitempty"`
}

// ChatResponse is the engine-level chat output.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// Service is the chat orchestrator.
type Service struct {
	flows       *graph.Manager
	contextMgr  *contexts.Manager
	turnTimeout time.Duration
}

// NewService creates the chat orchestrator.
func NewService(flows *graph.Manager, contextMgr *contexts.Manager) *Service {
	return &Service{
		flows:       flows,
		contextMgr:  contextMgr,
		turnTimeout: defaultTurnTimeout,
	}
}

// Chat runs one turn. Preconditions: the session and token contexts must
// exist (contexts.ErrContextNotFound otherwise). Degraded turns still
// return a response string; only missing contexts, unknown flows and
// compile failures surface as errors.
func (s *Service) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	sessionCtx, err := s.contextMgr.GetSession(req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", req.SessionID, err)
	}
	tokenCtx, err := s.contextMgr.GetToken(req.TokenID)
	if err != nil {
		return nil, fmt.Errorf("token %s: %w", req.TokenID, err)
	}

	flowKey := sessionCtx.FlowInfo.FlowKey
	compiled, err := s.flows.GetFlow(flowKey)
	if err != nil {
		return nil, err
	}

	traceID := req.TraceID
	if traceID == "" {
		// 32 lowercase hex characters.
		traceID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	slog.Info("Chat turn started",
		"session_id", req.SessionID,
		"token_id", req.TokenID,
		"trace_id", traceID,
		"flow", flowKey,
		"message_length", len(req.Message),
		"history_count", len(req.ConversationHistory))

	state := s.buildInitialState(req, tokenCtx, compiled, traceID)

	// Bind the ambient identity for every tool call of this turn. The
	// binding lives on the derived context and vanishes with it.
	turnCtx, cancel := context.WithTimeout(ctx, s.turnTimeout)
	defer cancel()
	turnCtx = tools.WithRuntime(turnCtx, tools.RuntimeContext{
		TokenID:   req.TokenID,
		SessionID: req.SessionID,
		TraceID:   traceID,
	})

	finalState, err := compiled.Invoke(turnCtx, state)
	if err != nil {
		// Cancellation or a routing defect: partial flow messages are
		// discarded, the caller still gets a response body.
		slog.Error("Chat turn failed", "session_id", req.SessionID, "trace_id", traceID, "error", err)
		observability.ChatTurnsTotal.WithLabelValues(flowKey, "error").Inc()
		return &ChatResponse{Response: DefaultApology, SessionID: req.SessionID}, nil
	}

	response := DefaultApology
	if msg, ok := finalState.LastAssistantMessage(); ok && msg.Content != "" {
		response = msg.Content
	}

	// Persist the reduced conversation: history + this turn's user
	// message + the final assistant reply.
	if !finalState.Degraded && state.CurrentMessage != nil {
		reduced := append(finalState.HistoryMessages,
			*state.CurrentMessage,
			llms.AssistantMessage(response))
		compiled.Checkpointer().Save(req.SessionID, reduced)
	}

	outcome := "ok"
	if finalState.Degraded {
		outcome = "degraded"
	}
	observability.ChatTurnsTotal.WithLabelValues(flowKey, outcome).Inc()
	observability.ChatTurnDuration.WithLabelValues(flowKey).Observe(time.Since(start).Seconds())

	slog.Info("Chat turn completed",
		"session_id", req.SessionID,
		"trace_id", traceID,
		"degraded", finalState.Degraded,
		"response_length", len(response),
		"duration", time.Since(start))

	return &ChatResponse{Response: response, SessionID: req.SessionID}, nil
}

// buildInitialState seeds the flow state: the new human message, the
// prior conversation (caller-provided history wins over the checkpoint),
// and the base prompt variables.
func (s *Service) buildInitialState(req *ChatRequest, tokenCtx *contexts.TokenContext, compiled *graph.CompiledGraph, traceID string) *graph.FlowState {
	state := graph.NewFlowState(req.SessionID, req.TokenID, traceID)

	current := llms.UserMessage(req.Message)
	state.CurrentMessage = &current

	if len(req.ConversationHistory) > 0 {
		for _, msg := range req.ConversationHistory {
			switch msg.Role {
			case llms.RoleUser:
				state.HistoryMessages = append(state.HistoryMessages, llms.UserMessage(msg.Content))
			case llms.RoleAssistant:
				state.HistoryMessages = append(state.HistoryMessages, llms.AssistantMessage(msg.Content))
			}
		}
	} else {
		state.HistoryMessages = compiled.Checkpointer().Load(req.SessionID)
	}

	currentDate := req.CurrentDate
	if currentDate == "" {
		currentDate = time.Now().Format("2006-01-02 15:04:05")
	}
	state.PromptVars["current_date"] = currentDate

	var userInfo any
	if tokenCtx.UserInfo != nil {
		userInfo = tokenCtx.UserInfo
	}
	if req.UserInfo != nil {
		userInfo = normalizeUserInfo(req.UserInfo)
	}
	state.PromptVars["user_info"] = userInfo

	return state
}

// normalizeUserInfo accepts the wire-format profile override: a map
// passes through, a JSON-object string is parsed, anything else is used
// verbatim.
func normalizeUserInfo(v any) any {
	if s, ok := v.(string); ok {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			return parsed
		}
	}
	return v
}
