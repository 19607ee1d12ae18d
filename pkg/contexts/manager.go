// Package contexts provides the process-wide identity stores: token
// contexts (authenticated principal + profile) and session contexts
// (conversation bound to a flow).
package contexts

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrContextNotFound is returned when a token or session lookup misses.
var ErrContextNotFound = errors.New("context not found")

// TokenContext represents an authenticated principal. UserID is immutable
// for the lifetime of the token; token_id equals user_id today but the
// two stay conceptually distinct.
type TokenContext struct {
	TokenID  string
	UserID   string
	UserInfo map[string]any
}

// FlowInfo binds a session to a loaded flow.
type FlowInfo struct {
	FlowKey     string `json:"flow_key"`
	DisplayName string `json:"display_name"`
}

// SessionContext represents an ongoing conversation. The canonical
// session id is "{user_id}_{counterparty_id}_{flow_key}".
type SessionContext struct {
	SessionID  string
	UserID     string
	FlowInfo   FlowInfo
	DoctorInfo map[string]any
}

// Manager owns the two independent context maps. Each map has its own
// lock; operations never hold both.
type Manager struct {
	tokenMu  sync.RWMutex
	tokens   map[string]*TokenContext
	sessMu   sync.RWMutex
	sessions map[string]*SessionContext
}

// NewManager creates an empty context manager.
func NewManager() *Manager {
	return &Manager{
		tokens:   make(map[string]*TokenContext),
		sessions: make(map[string]*SessionContext),
	}
}

// ----------------------------------------------------------------------------
// Token contexts

// CreateToken stores a token context; an existing key is overwritten with
// a warning.
func (m *Manager) CreateToken(tc *TokenContext) *TokenContext {
	m.tokenMu.Lock()
	defer m.tokenMu.Unlock()

	if _, exists := m.tokens[tc.TokenID]; exists {
		slog.Warn("TokenContext already exists, overwriting", "token_id", tc.TokenID)
	}
	m.tokens[tc.TokenID] = tc
	slog.Info("Created TokenContext", "token_id", tc.TokenID)
	return tc
}

// GetToken returns the token context, or ErrContextNotFound.
func (m *Manager) GetToken(tokenID string) (*TokenContext, error) {
	m.tokenMu.RLock()
	defer m.tokenMu.RUnlock()

	tc, ok := m.tokens[tokenID]
	if !ok {
		return nil, ErrContextNotFound
	}
	return tc, nil
}

// GetOrCreateToken returns the existing context or stores and returns the
// given one. Repeated calls for an existing key return the same instance.
func (m *Manager) GetOrCreateToken(tc *TokenContext) *TokenContext {
	m.tokenMu.Lock()
	defer m.tokenMu.Unlock()

	if existing, ok := m.tokens[tc.TokenID]; ok {
		return existing
	}
	m.tokens[tc.TokenID] = tc
	slog.Info("Created TokenContext", "token_id", tc.TokenID)
	return tc
}

// ClearToken removes one token context.
func (m *Manager) ClearToken(tokenID string) {
	m.tokenMu.Lock()
	defer m.tokenMu.Unlock()

	if _, ok := m.tokens[tokenID]; ok {
		delete(m.tokens, tokenID)
		slog.Info("Cleared TokenContext", "token_id", tokenID)
	}
}

// TokenCount returns the number of token contexts.
func (m *Manager) TokenCount() int {
	m.tokenMu.RLock()
	defer m.tokenMu.RUnlock()
	return len(m.tokens)
}

// ----------------------------------------------------------------------------
// Session contexts

// CreateSession stores a session context; an existing key is overwritten
// with a warning.
func (m *Manager) CreateSession(sc *SessionContext) *SessionContext {
	m.sessMu.Lock()
	defer m.sessMu.Unlock()

	if _, exists := m.sessions[sc.SessionID]; exists {
		slog.Warn("SessionContext already exists, overwriting", "session_id", sc.SessionID)
	}
	m.sessions[sc.SessionID] = sc
	slog.Info("Created SessionContext", "session_id", sc.SessionID, "flow_key", sc.FlowInfo.FlowKey)
	return sc
}

// GetSession returns the session context, or ErrContextNotFound.
func (m *Manager) GetSession(sessionID string) (*SessionContext, error) {
	m.sessMu.RLock()
	defer m.sessMu.RUnlock()

	sc, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrContextNotFound
	}
	return sc, nil
}

// GetOrCreateSession returns the existing context or stores and returns
// the given one.
func (m *Manager) GetOrCreateSession(sc *SessionContext) *SessionContext {
	m.sessMu.Lock()
	defer m.sessMu.Unlock()

	if existing, ok := m.sessions[sc.SessionID]; ok {
		return existing
	}
	m.sessions[sc.SessionID] = sc
	slog.Info("Created SessionContext", "session_id", sc.SessionID, "flow_key", sc.FlowInfo.FlowKey)
	return sc
}

// ClearSession removes one session context.
func (m *Manager) ClearSession(sessionID string) {
	m.sessMu.Lock()
	defer m.sessMu.Unlock()

	if _, ok := m.sessions[sessionID]; ok {
		delete(m.sessions, sessionID)
		slog.Info("Cleared SessionContext", "session_id", sessionID)
	}
}

// SessionCount returns the number of session contexts.
func (m *Manager) SessionCount() int {
	m.sessMu.RLock()
	defer m.sessMu.RUnlock()
	return len(m.sessions)
}

// ----------------------------------------------------------------------------

// ClearAll empties both maps.
func (m *Manager) ClearAll() {
	m.tokenMu.Lock()
	tokenCount := len(m.tokens)
	m.tokens = make(map[string]*TokenContext)
	m.tokenMu.Unlock()

	m.sessMu.Lock()
	sessionCount := len(m.sessions)
	m.sessions = make(map[string]*SessionContext)
	m.sessMu.Unlock()

	slog.Info("Cleared all contexts", "tokens", tokenCount, "sessions", sessionCount)
}
