package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateTime(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"2024-03-15", true},
		{"2024-03-15 14:30", true},
		{"2024-03-15 14:30:45", true},
		{"  2024-03-15 ", true},
		{"2024/03/15", false},
		{"15-03-2024", false},
		{"tomorrow", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, ok := parseDateTime(tt.input)
			assert.Equal(t, tt.ok, ok)
		})
	}

	parsed, ok := parseDateTime("2024-03-15 14:30")
	require.True(t, ok)
	assert.Equal(t, 2024, parsed.Year())
	assert.Equal(t, time.March, parsed.Month())
	assert.Equal(t, 14, parsed.Hour())
	assert.Equal(t, 30, parsed.Minute())
}

func TestQueryWindow(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.Local)

	t.Run("defaults to 14 days ending now", func(t *testing.T) {
		start, end := queryWindow(0, false, time.Time{}, false, time.Time{}, false, now)
		assert.Equal(t, now, end)
		assert.Equal(t, now.AddDate(0, 0, -14), start)
	})

	t.Run("days clamped to 14", func(t *testing.T) {
		start, end := queryWindow(50, true, time.Time{}, false, time.Time{}, false, now)
		assert.Equal(t, now, end)
		assert.Equal(t, now.AddDate(0, 0, -14), start)
	})

	t.Run("days zero yields empty window", func(t *testing.T) {
		start, end := queryWindow(0, true, time.Time{}, false, time.Time{}, false, now)
		assert.Equal(t, end, start)
	})

	t.Run("explicit days", func(t *testing.T) {
		start, end := queryWindow(7, true, time.Time{}, false, time.Time{}, false, now)
		assert.Equal(t, now.AddDate(0, 0, -7), start)
		assert.Equal(t, now, end)
	})

	t.Run("only end date anchors start at end minus days", func(t *testing.T) {
		end := time.Date(2024, 3, 10, 23, 59, 59, 0, time.Local)
		start, gotEnd := queryWindow(7, true, time.Time{}, false, end, true, now)
		assert.Equal(t, end, gotEnd)
		assert.Equal(t, end.AddDate(0, 0, -7), start)
	})

	t.Run("only start date ends now", func(t *testing.T) {
		start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.Local)
		gotStart, gotEnd := queryWindow(0, false, start, true, time.Time{}, false, now)
		assert.Equal(t, start, gotStart)
		assert.Equal(t, now, gotEnd)
	})

	t.Run("explicit range wider than 14 days is clamped", func(t *testing.T) {
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
		end := time.Date(2024, 3, 10, 0, 0, 0, 0, time.Local)
		gotStart, gotEnd := queryWindow(0, false, start, true, end, true, now)
		assert.Equal(t, end, gotEnd)
		assert.Equal(t, end.Add(-maxQueryDays*24*time.Hour), gotStart)
	})
}

func TestRuntimeContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, TokenIDFromContext(ctx))

	bound := WithRuntime(ctx, RuntimeContext{TokenID: "u1", SessionID: "s1", TraceID: "t1"})
	assert.Equal(t, "u1", TokenIDFromContext(bound))
	assert.Equal(t, "s1", SessionIDFromContext(bound))
	assert.Equal(t, "t1", TraceIDFromContext(bound))

	// Nested binding shadows; the outer context is untouched.
	nested := WithRuntime(bound, RuntimeContext{TokenID: "u2"})
	assert.Equal(t, "u2", TokenIDFromContext(nested))
	assert.Equal(t, "u1", TokenIDFromContext(bound))
}
