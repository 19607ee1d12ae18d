package tools

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// LLM-produced arguments arrive as decoded JSON; numbers are float64 and
// integers may come quoted. These helpers normalize access.

func stringArg(args map[string]any, name string) (string, bool) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func intArg(args map[string]any, name string) (int, bool) {
	v, ok := args[name]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i, true
		}
	}
	return 0, false
}

// backendRetryAttempts bounds retries of repository operations inside
// tools; final failures surface as tool-message text, never as errors.
const backendRetryAttempts = 3

// withBackendRetry runs a repository operation with exponential backoff.
func withBackendRetry(ctx context.Context, operation string, fn func() error) error {
	var err error
	for attempt := 0; attempt < backendRetryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < backendRetryAttempts-1 {
			backoff := time.Duration(1<<attempt) * 100 * time.Millisecond
			slog.Warn("Tool backend operation failed, retrying",
				"operation", operation,
				"attempt", attempt+1,
				"backoff", backoff,
				"error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}
