package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cacheTemplate(t *testing.T, m *Manager, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tpl.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	key, err := m.CachedPrompt("tpl.md", dir)
	require.NoError(t, err)
	return key
}

func TestBuildSystemMessage_Substitution(t *testing.T) {
	m := NewManager(t.TempDir())
	key := cacheTemplate(t, m, "Date: {current_date}\nInfo: {user_info}\nKeep: {later_var}")

	result, err := m.BuildSystemMessage(key, map[string]any{
		"current_date": "2024-03-15 10:00:00",
		"user_info":    nil,
	})
	require.NoError(t, err)

	assert.Contains(t, result, "Date: 2024-03-15 10:00:00")
	// nil renders as empty string.
	assert.Contains(t, result, "Info: \n")
	// Names absent from prompt_vars stay untouched.
	assert.Contains(t, result, "Keep: {later_var}")
}

func TestBuildSystemMessage_JSONRendering(t *testing.T) {
	m := NewManager(t.TempDir())
	key := cacheTemplate(t, m, "{user_info}")

	result, err := m.BuildSystemMessage(key, map[string]any{
		"user_info": map[string]any{"姓名": "张三", "age": 58},
	})
	require.NoError(t, err)

	// Pretty JSON, 2-space indent, non-ASCII preserved.
	assert.Contains(t, result, "\"姓名\": \"张三\"")
	assert.Contains(t, result, "  \"age\": 58")
	assert.NotContains(t, result, "\\u")
}

func TestBuildSystemMessage_SinglePass(t *testing.T) {
	m := NewManager(t.TempDir())
	key := cacheTemplate(t, m, "{a}")

	// A substituted value containing {b} is not re-scanned.
	result, err := m.BuildSystemMessage(key, map[string]any{
		"a": "literal {b}",
		"b": "should never appear",
	})
	require.NoError(t, err)
	assert.Equal(t, "literal {b}", result)
}

func TestBuildSystemMessage_ScalarRendering(t *testing.T) {
	m := NewManager(t.TempDir())
	key := cacheTemplate(t, m, "n={n} f={f} b={b} list={list}")

	result, err := m.BuildSystemMessage(key, map[string]any{
		"n":    42,
		"f":    0.5,
		"b":    true,
		"list": []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.Contains(t, result, "n=42")
	assert.Contains(t, result, "f=0.5")
	assert.Contains(t, result, "b=true")
	assert.Contains(t, result, "\"a\"")
}

func TestBuildSystemMessage_MissingKey(t *testing.T) {
	m := NewManager(t.TempDir())
	_, err := m.BuildSystemMessage("/nope", nil)
	assert.ErrorIs(t, err, ErrPromptNotCached)
}
