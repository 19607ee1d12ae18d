package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GD25Workhome/gd25-biz-agent/pkg/contexts"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/flow"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/graph"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/llms"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/orchestrator"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/repository"
)

type staticRunner struct {
	output string
}

func (r *staticRunner) Invoke(ctx context.Context, msgs []llms.Message, sysMsg llms.Message) (string, []llms.Message, error) {
	return r.output, nil, nil
}

func (r *staticRunner) PromptCacheKey() string { return "static" }

type staticAgentBuilder struct {
	runner *staticRunner
}

func (b *staticAgentBuilder) CreateAgent(cfg *flow.AgentNodeConfig, flowDir string) (graph.AgentRunner, error) {
	return b.runner, nil
}

type staticPromptBuilder struct{}

func (staticPromptBuilder) BuildSystemMessage(cacheKey string, promptVars map[string]any) (string, error) {
	return "", nil
}

func newTestServer(t *testing.T) (*Server, *contexts.Manager) {
	t.Helper()

	root := t.TempDir()
	flowDir := filepath.Join(root, "medical_agent")
	require.NoError(t, os.MkdirAll(flowDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(flowDir, "flow.yaml"), []byte(`
name: medical_agent
description: 高血压健康管理助手
entry_node: answer
nodes:
  - name: answer
    type: agent
    config:
      prompt: answer.md
      model:
        provider: doubao
        name: test-model
edges:
  - from: answer
    to: END
    condition: always
`), 0644))

	builder := graph.NewBuilder(
		&staticAgentBuilder{runner: &staticRunner{output: "您好，我是健康助手。"}},
		staticPromptBuilder{}, nil)
	flowMgr := graph.NewManager(root, builder)
	_, err := flowMgr.ScanFlows()
	require.NoError(t, err)

	users := repository.NewMemoryUsers(nil)
	users.Put(&repository.User{ID: "u1", UserInfo: map[string]any{"name": "张三", "age": 58}})

	contextMgr := contexts.NewManager()
	chat := orchestrator.NewService(flowMgr, contextMgr)
	return New("127.0.0.1:0", chat, contextMgr, flowMgr, users), contextMgr
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestTokenAndSessionLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	// Unknown user cannot create a token.
	rec := doJSON(t, s, http.MethodPost, "/api/v1/login/token", map[string]string{"user_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Known user gets token_id == user_id.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/login/token", map[string]string{"user_id": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var tokenResp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokenResp))
	assert.Equal(t, "u1", tokenResp["token_id"])

	// Session creation verifies the flow and builds the canonical id.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/login/session", map[string]string{
		"user_id": "u1", "flow_name": "medical_agent",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var sessResp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessResp))
	assert.Equal(t, "u1_doctorId001_medical_agent", sessResp["session_id"])

	// Unknown flow is rejected.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/login/session", map[string]string{
		"user_id": "u1", "flow_name": "ghost_flow",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Reads return the stored contexts.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/login/token/u1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, s, http.MethodGet, "/api/v1/login/session/u1_doctorId001_medical_agent", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, s, http.MethodGet, "/api/v1/login/session/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	// Create token and session first.
	doJSON(t, s, http.MethodPost, "/api/v1/login/token", map[string]string{"user_id": "u1"})
	doJSON(t, s, http.MethodPost, "/api/v1/login/session", map[string]string{
		"user_id": "u1", "flow_name": "medical_agent",
	})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/chat", map[string]string{
		"message":    "你好",
		"session_id": "u1_doctorId001_medical_agent",
		"token_id":   "u1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "您好，我是健康助手。", resp["response"])
	assert.Equal(t, "u1_doctorId001_medical_agent", resp["session_id"])
}

func TestChatEndpoint_MissingContexts(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/chat", map[string]string{
		"message":    "你好",
		"session_id": "nope",
		"token_id":   "nope",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CONTEXT_NOT_FOUND", resp["code"])
}

func TestChatEndpoint_BadRequest(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/chat", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListFlows(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/flows", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Flows []flowPreviewDTO `json:"flows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Flows, 1)
	assert.Equal(t, "medical_agent", resp.Flows[0].Name)
	assert.Equal(t, 1, resp.Flows[0].NodeCount)
	assert.False(t, resp.Flows[0].IsCompiled)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
