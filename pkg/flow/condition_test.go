package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateCondition_Comparisons(t *testing.T) {
	vars := map[string]any{
		"intent":     "record_blood_pressure",
		"confidence": 0.92,
		"count":      3,
	}

	tests := []struct {
		name      string
		condition string
		want      bool
	}{
		{"string equality", "intent == 'record_blood_pressure'", true},
		{"string inequality", "intent != 'chat'", true},
		{"double quoted string", `intent == "record_blood_pressure"`, true},
		{"float gte", "confidence >= 0.8", true},
		{"float gt false", "confidence > 0.92", false},
		{"threshold boundary fires", "confidence >= 0.92", true},
		{"int comparison", "count < 5", true},
		{"int equality", "count == 3", true},
		{"lte", "count <= 3", true},
		{"string mismatch", "intent == 'chat'", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateCondition(tt.condition, vars))
		})
	}
}

func TestEvaluateCondition_Logical(t *testing.T) {
	vars := map[string]any{
		"intent":             "record_blood_pressure",
		"confidence":         0.92,
		"need_clarification": false,
	}

	tests := []struct {
		name      string
		condition string
		want      bool
	}{
		{"and symbolic", "intent == 'record_blood_pressure' && confidence >= 0.8", true},
		{"and word", "intent == 'record_blood_pressure' and confidence >= 0.8", true},
		{"and short circuit false", "intent == 'chat' && confidence >= 0.8", false},
		{"or symbolic", "intent == 'chat' || confidence >= 0.8", true},
		{"or word", "intent == 'chat' or need_clarification == true", false},
		{"not symbolic", "!need_clarification", true},
		{"not word", "not need_clarification", true},
		{"parens change grouping", "(intent == 'chat' || intent == 'record_blood_pressure') && confidence >= 0.8", true},
		{"bool literal case insensitive", "need_clarification == False", true},
		{"bool literal true", "need_clarification == TRUE", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateCondition(tt.condition, vars))
		})
	}
}

func TestEvaluateCondition_NeverRaises(t *testing.T) {
	// Unknown identifier evaluates to false, no panic.
	assert.False(t, EvaluateCondition("foo == 'bar'", map[string]any{}))
	assert.False(t, EvaluateCondition("foo", map[string]any{}))

	// Syntax errors evaluate to false.
	assert.False(t, EvaluateCondition("intent ==", map[string]any{"intent": "x"}))
	assert.False(t, EvaluateCondition("(intent == 'x'", map[string]any{"intent": "x"}))
	assert.False(t, EvaluateCondition("intent = 'x'", map[string]any{"intent": "x"}))
	assert.False(t, EvaluateCondition("", map[string]any{}))
	assert.False(t, EvaluateCondition("   ", map[string]any{}))
	assert.False(t, EvaluateCondition("a & b", map[string]any{"a": true, "b": true}))
}

func TestEvaluateCondition_SentinelDefaults(t *testing.T) {
	// Nil values take name-based defaults instead of breaking evaluation.
	vars := map[string]any{
		"record_success":     nil,
		"event_type":         nil,
		"confidence":         nil,
		"need_clarification": nil,
		"intent":             nil,
		"anything_else":      nil,
	}

	assert.True(t, EvaluateCondition("record_success == false", vars))
	assert.True(t, EvaluateCondition("event_type == ''", vars))
	assert.True(t, EvaluateCondition("confidence == 0.0", vars))
	assert.True(t, EvaluateCondition("need_clarification == false", vars))
	assert.True(t, EvaluateCondition("intent == ''", vars))
	assert.True(t, EvaluateCondition("anything_else == ''", vars))
	assert.False(t, EvaluateCondition("confidence >= 0.8", vars))
}

func TestEvaluateCondition_Truthiness(t *testing.T) {
	// Non-boolean results coerce by truthiness.
	assert.True(t, EvaluateCondition("intent", map[string]any{"intent": "chat"}))
	assert.False(t, EvaluateCondition("intent", map[string]any{"intent": ""}))
	assert.True(t, EvaluateCondition("confidence", map[string]any{"confidence": 0.5}))
	assert.False(t, EvaluateCondition("confidence", map[string]any{"confidence": 0.0}))
	assert.True(t, EvaluateCondition("count", map[string]any{"count": 7}))
}

func TestEvaluateCondition_MixedTypeEquality(t *testing.T) {
	vars := map[string]any{"intent": "chat", "confidence": 0.5}

	// Mixed-type equality never matches; inequality always does.
	assert.False(t, EvaluateCondition("intent == 0.5", vars))
	assert.True(t, EvaluateCondition("intent != 0.5", vars))
	// Ordering across types is an evaluation error, recovered as false.
	assert.False(t, EvaluateCondition("intent < 0.5", vars))
}
