// Package server provides the thin HTTP surface over the chat
// orchestrator, the context manager and the flow manager.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GD25Workhome/gd25-biz-agent/pkg/contexts"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/graph"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/orchestrator"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/repository"
)

// defaultCounterpartyID fills the session id when the caller names no
// counterparty.
const defaultCounterpartyID = "doctorId001"

// Server hosts the HTTP API.
type Server struct {
	chat       *orchestrator.Service
	contextMgr *contexts.Manager
	flows      *graph.Manager
	users      repository.UserRepository
	httpServer *http.Server
}

// New creates the server.
func New(addr string, chat *orchestrator.Service, contextMgr *contexts.Manager, flows *graph.Manager, users repository.UserRepository) *Server {
	s := &Server{
		chat:       chat,
		contextMgr: contextMgr,
		flows:      flows,
		users:      users,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(180 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/login/token", s.handleCreateToken)
		r.Post("/login/session", s.handleCreateSession)
		r.Get("/login/token/{tokenID}", s.handleGetToken)
		r.Get("/login/session/{sessionID}", s.handleGetSession)
		r.Get("/flows", s.handleListFlows)
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ----------------------------------------------------------------------------
// Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequestDTO struct {
	Message             string                        `json:"message"`
	SessionID           string                        `json:"session_id"`
	TokenID             string                        `json:"token_id"`
	TraceID             string                        `json:"trace_id,omitempty"`
	ConversationHistory []orchestrator.HistoryMessage `json:"conversation_history,omitempty"`
	CurrentDate         string                        `json:"current_date,omitempty"`
	UserInfo            any                           `json:"user_info,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var dto chatRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if dto.Message == "" || dto.SessionID == "" || dto.TokenID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "message, session_id and token_id are required")
		return
	}

	resp, err := s.chat.Chat(r.Context(), &orchestrator.ChatRequest{
		Message:             dto.Message,
		SessionID:           dto.SessionID,
		TokenID:             dto.TokenID,
		TraceID:             dto.TraceID,
		ConversationHistory: dto.ConversationHistory,
		CurrentDate:         dto.CurrentDate,
		UserInfo:            dto.UserInfo,
	})
	if err != nil {
		switch {
		case errors.Is(err, contexts.ErrContextNotFound):
			writeError(w, http.StatusNotFound, "CONTEXT_NOT_FOUND", err.Error())
		case errors.Is(err, graph.ErrFlowNotFound):
			writeError(w, http.StatusNotFound, "FLOW_NOT_FOUND", err.Error())
		default:
			slog.Error("Chat request failed", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "处理请求失败")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type createTokenDTO struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var dto createTokenDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil || dto.UserID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "user_id is required")
		return
	}

	user, err := s.users.GetByID(r.Context(), dto.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "USER_NOT_FOUND", fmt.Sprintf("用户不存在: %s", dto.UserID))
			return
		}
		slog.Error("Failed to load user", "user_id", dto.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "创建Token失败")
		return
	}

	s.contextMgr.CreateToken(&contexts.TokenContext{
		TokenID:  user.ID,
		UserID:   user.ID,
		UserInfo: user.UserInfo,
	})

	writeJSON(w, http.StatusOK, map[string]string{"token_id": user.ID})
}

type createSessionDTO struct {
	UserID         string `json:"user_id"`
	FlowName       string `json:"flow_name"`
	CounterpartyID string `json:"counterparty_id,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var dto createSessionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil || dto.UserID == "" || dto.FlowName == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "user_id and flow_name are required")
		return
	}

	if !s.flows.HasDefinition(dto.FlowName) {
		writeError(w, http.StatusBadRequest, "FLOW_NOT_FOUND", fmt.Sprintf("无效的流程名称: %s", dto.FlowName))
		return
	}

	counterparty := dto.CounterpartyID
	if counterparty == "" {
		counterparty = defaultCounterpartyID
	}

	sessionID := fmt.Sprintf("%s_%s_%s", dto.UserID, counterparty, dto.FlowName)

	displayName := dto.FlowName
	if def, ok := s.flows.Definitions()[dto.FlowName]; ok && def.Description != "" {
		displayName = def.Description
	}

	s.contextMgr.CreateSession(&contexts.SessionContext{
		SessionID: sessionID,
		UserID:    dto.UserID,
		FlowInfo: contexts.FlowInfo{
			FlowKey:     dto.FlowName,
			DisplayName: displayName,
		},
		DoctorInfo: map[string]any{"doctor_id": counterparty},
	})

	writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID})
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "tokenID")
	tc, err := s.contextMgr.GetToken(tokenID)
	if err != nil {
		writeError(w, http.StatusNotFound, "CONTEXT_NOT_FOUND", fmt.Sprintf("Token不存在: %s", tokenID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token_id":  tc.TokenID,
		"user_id":   tc.UserID,
		"user_info": tc.UserInfo,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sc, err := s.contextMgr.GetSession(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "CONTEXT_NOT_FOUND", fmt.Sprintf("Session不存在: %s", sessionID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":  sc.SessionID,
		"user_id":     sc.UserID,
		"flow_info":   sc.FlowInfo,
		"doctor_info": sc.DoctorInfo,
	})
}

type flowPreviewDTO struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	NodeCount   int    `json:"node_count"`
	EdgeCount   int    `json:"edge_count"`
	IsCompiled  bool   `json:"is_compiled"`
}

func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	var previews []flowPreviewDTO
	for name, def := range s.flows.Definitions() {
		previews = append(previews, flowPreviewDTO{
			Name:        name,
			Version:     def.Version,
			Description: def.Description,
			NodeCount:   len(def.Nodes),
			EdgeCount:   len(def.Edges),
			IsCompiled:  s.flows.IsCompiled(name),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"flows": previews})
}

// ----------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"code": code, "detail": detail})
}
