package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// BuildSystemMessage composes the turn-time system prompt: the cached
// template for cacheKey with every {name} present in promptVars
// substituted. Substitution is single-pass and non-recursive; the result
// is never re-scanned for further tokens. Names absent from promptVars
// are left untouched.
//
// Value rendering: nil → empty string; maps and lists → pretty JSON
// (2-space indent, non-ASCII preserved); everything else → its string
// form.
func (m *Manager) BuildSystemMessage(cacheKey string, promptVars map[string]any) (string, error) {
	template, err := m.GetPromptByKey(cacheKey)
	if err != nil {
		return "", err
	}

	safeVars := make(map[string]string, len(promptVars))
	for key, value := range promptVars {
		safeVars[key] = renderValue(value)
	}

	result := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.Trim(match, "{}")
		if rendered, ok := safeVars[name]; ok {
			return rendered
		}
		return match
	})

	slog.Debug("Built system message",
		"key", cacheKey,
		"vars", len(safeVars),
		"length", len(result))

	return result, nil
}

// renderValue converts a prompt variable into its template form.
func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, []any, []string, map[string]string:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Sprintf("%v", v)
		}
		// Encoder appends a trailing newline.
		return strings.TrimRight(buf.String(), "\n")
	default:
		return fmt.Sprintf("%v", v)
	}
}
