// Package prompt implements the two-stage prompt composition pipeline:
// rule-fragment substitution at template load time (cached by absolute
// path) and per-turn variable substitution producing the system message.
package prompt

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// ErrPromptNotCached is returned when a cache key has no entry.
var ErrPromptNotCached = errors.New("prompt not cached")

// placeholderPattern matches {identifier} substitution targets. Single
// braces, no whitespace or nested braces inside.
var placeholderPattern = regexp.MustCompile(`\{([^{}\s]+)\}`)

// Manager owns the template cache (absolute path → rendered content) and
// the rule-fragment cache (fragment name → raw file content). Both caches
// live for the process; fragments are scanned lazily once and refreshed
// only by ClearCache.
type Manager struct {
	ruleDir string

	mu        sync.RWMutex
	templates map[string]string
	fragments map[string]string
	scanned   bool
}

// NewManager creates a prompt manager with the given rule-fragment
// directory (conventionally <root>/config/flows/flow_rule).
func NewManager(ruleDir string) *Manager {
	return &Manager{
		ruleDir:   ruleDir,
		templates: make(map[string]string),
		fragments: make(map[string]string),
	}
}

// CachedPrompt resolves a template path against the flow directory, reads
// the file from disk (always — the cache is a read-through store keyed by
// identity, not a TTL cache), substitutes rule fragments, stores the
// result under the absolute-path key and returns the key.
//
// After this call the cached content has no {name} token that corresponds
// to an existing rule fragment; remaining {name} tokens are turn-time
// variables.
func (m *Manager) CachedPrompt(relPath, flowDir string) (string, error) {
	resolved := relPath
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(flowDir, relPath)
	}
	cacheKey, err := filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("failed to resolve prompt path %s: %w", relPath, err)
	}

	data, err := os.ReadFile(cacheKey)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt template %s: %w", cacheKey, err)
	}

	content := m.substituteFragments(string(data))

	m.mu.Lock()
	if _, exists := m.templates[cacheKey]; exists {
		slog.Debug("Overwriting cached prompt", "key", cacheKey)
	}
	m.templates[cacheKey] = content
	m.mu.Unlock()

	return cacheKey, nil
}

// GetPromptByKey returns the cached template for a key.
func (m *Manager) GetPromptByKey(cacheKey string) (string, error) {
	m.mu.RLock()
	content, ok := m.templates[cacheKey]
	m.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPromptNotCached, cacheKey)
	}
	return content, nil
}

// ClearCache empties both the template cache and the fragment cache; the
// fragments are re-scanned on next use.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.templates = make(map[string]string)
	m.fragments = make(map[string]string)
	m.scanned = false
	slog.Info("Prompt caches cleared")
}

// CacheSize returns the number of cached templates.
func (m *Manager) CacheSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.templates)
}

// substituteFragments expands every {name} for which a rule fragment
// name.md exists; unknown names stay untouched for turn-time
// substitution. Single pass: fragment content is not re-scanned.
func (m *Manager) substituteFragments(template string) string {
	fragments := m.ruleFragments()
	if len(fragments) == 0 {
		return template
	}

	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.Trim(match, "{}")
		if content, ok := fragments[name]; ok {
			return content
		}
		return match
	})
}

// ruleFragments returns the fragment cache, scanning the rule directory
// on first use. All fragments are loaded together.
func (m *Manager) ruleFragments() map[string]string {
	m.mu.RLock()
	if m.scanned {
		defer m.mu.RUnlock()
		return m.fragments
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanned {
		return m.fragments
	}
	m.scanned = true

	entries, err := os.ReadDir(m.ruleDir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("Failed to read rule fragment directory", "dir", m.ruleDir, "error", err)
		} else {
			slog.Warn("Rule fragment directory does not exist", "dir", m.ruleDir)
		}
		return m.fragments
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		path := filepath.Join(m.ruleDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("Failed to read rule fragment", "path", path, "error", err)
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".md")
		m.fragments[name] = string(data)
		slog.Debug("Cached rule fragment", "name", name)
	}

	slog.Info("Loaded rule fragments", "dir", m.ruleDir, "count", len(m.fragments))
	return m.fragments
}
