package tools

import (
	"context"
)

// ============================================================================
// AMBIENT RUNTIME CONTEXT
// Request-scoped identity carried on context.Context with typed keys.
// The chat orchestrator binds it before graph execution; every tool
// invocation inside the turn — including work spawned by the executor —
// inherits it automatically, so identity never travels through LLM
// arguments.
// ============================================================================

// RuntimeContext carries the three per-turn identity fields.
type RuntimeContext struct {
	TokenID   string
	SessionID string
	TraceID   string
}

type runtimeContextKey struct{}

// WithRuntime returns a context carrying the runtime identity. The
// previous value, if any, is shadowed for the lifetime of the derived
// context and restored automatically when the turn's context is dropped.
func WithRuntime(ctx context.Context, rc RuntimeContext) context.Context {
	return context.WithValue(ctx, runtimeContextKey{}, rc)
}

// RuntimeFromContext extracts the runtime identity from a context.
func RuntimeFromContext(ctx context.Context) (RuntimeContext, bool) {
	rc, ok := ctx.Value(runtimeContextKey{}).(RuntimeContext)
	return rc, ok
}

// TokenIDFromContext returns the ambient token id, or "" when unbound.
func TokenIDFromContext(ctx context.Context) string {
	rc, _ := RuntimeFromContext(ctx)
	return rc.TokenID
}

// SessionIDFromContext returns the ambient session id, or "" when unbound.
func SessionIDFromContext(ctx context.Context) string {
	rc, _ := RuntimeFromContext(ctx)
	return rc.SessionID
}

// TraceIDFromContext returns the ambient trace id, or "" when unbound.
func TraceIDFromContext(ctx context.Context) string {
	rc, _ := RuntimeFromContext(ctx)
	return rc.TraceID
}

// errMissingToken is the tool-message text returned when a tool runs
// without ambient identity. The model can recover from it; it is never
// raised as an error.
const errMissingToken = "错误：无法获取用户ID，请确保在正确的上下文中调用此工具。"
