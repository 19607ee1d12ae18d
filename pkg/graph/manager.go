package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/GD25Workhome/gd25-biz-agent/pkg/flow"
)

// ErrFlowNotFound is returned when a requested flow is not loaded and
// cannot be found by rescanning the flows directory.
var ErrFlowNotFound = errors.New("flow not found")

// Manager owns the flow-definition and compiled-graph caches. Definitions
// are scanned from disk once at startup and on demand when a requested
// flow is missing; graphs are compiled lazily on first use and cached
// until reload.
//
// Compilation of one flow is serialized by a per-flow-name lock so that
// concurrent first-use requests collapse to a single compile.
type Manager struct {
	flowsDir string
	builder  *Builder

	mu          sync.RWMutex
	definitions map[string]*flow.FlowDefinition
	compiled    map[string]*CompiledGraph

	compileMu sync.Mutex
	compiling map[string]*sync.Mutex

	watcher *fsnotify.Watcher
}

// NewManager creates a flow manager rooted at flowsDir.
func NewManager(flowsDir string, builder *Builder) *Manager {
	return &Manager{
		flowsDir:    flowsDir,
		builder:     builder,
		definitions: make(map[string]*flow.FlowDefinition),
		compiled:    make(map[string]*CompiledGraph),
		compiling:   make(map[string]*sync.Mutex),
	}
}

// ScanFlows parses every flow under the flows directory and merges the
// definitions into the cache.
func (m *Manager) ScanFlows() (int, error) {
	flows, err := flow.ScanDir(m.flowsDir)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	for name, def := range flows {
		m.definitions[name] = def
	}
	m.mu.Unlock()

	slog.Info("Scanned flow definitions", "dir", m.flowsDir, "count", len(flows))
	return len(flows), nil
}

// Definitions returns a snapshot of the loaded flow definitions.
func (m *Manager) Definitions() map[string]*flow.FlowDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*flow.FlowDefinition, len(m.definitions))
	for name, def := range m.definitions {
		out[name] = def
	}
	return out
}

// HasDefinition reports whether a flow definition is loaded, rescanning
// once on a miss.
func (m *Manager) HasDefinition(name string) bool {
	m.mu.RLock()
	_, ok := m.definitions[name]
	m.mu.RUnlock()
	if ok {
		return true
	}

	if _, err := m.ScanFlows(); err != nil {
		slog.Error("Flow rescan failed", "error", err)
		return false
	}

	m.mu.RLock()
	_, ok = m.definitions[name]
	m.mu.RUnlock()
	return ok
}

// IsCompiled reports whether a flow has a cached compiled graph.
func (m *Manager) IsCompiled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.compiled[name]
	return ok
}

// GetFlow returns the compiled graph for a flow, parsing and compiling on
// first use. Repeated calls return the same graph instance.
func (m *Manager) GetFlow(name string) (*CompiledGraph, error) {
	m.mu.RLock()
	if g, ok := m.compiled[name]; ok {
		m.mu.RUnlock()
		return g, nil
	}
	m.mu.RUnlock()

	// Serialize compilation per flow name.
	lock := m.flowLock(name)
	lock.Lock()
	defer lock.Unlock()

	// Another request may have compiled while we waited.
	m.mu.RLock()
	if g, ok := m.compiled[name]; ok {
		m.mu.RUnlock()
		return g, nil
	}
	m.mu.RUnlock()

	if !m.HasDefinition(name) {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, name)
	}

	m.mu.RLock()
	def := m.definitions[name]
	m.mu.RUnlock()
	if def == nil {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, name)
	}

	g, err := m.builder.Build(def)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.compiled[name] = g
	m.mu.Unlock()

	slog.Info("Compiled and cached flow", "flow", name)
	return g, nil
}

// Preload compiles the named flows up front; failures are logged, not
// fatal, so one broken flow does not block the rest of startup.
func (m *Manager) Preload(names []string) {
	for _, name := range names {
		if m.IsCompiled(name) {
			continue
		}
		if _, err := m.GetFlow(name); err != nil {
			slog.Error("Failed to preload flow", "flow", name, "error", err)
			continue
		}
		slog.Info("Preloaded flow", "flow", name)
	}
}

// Reload drops the compiled-graph cache and rescans definitions.
// Sessions keep working: the next GetFlow recompiles from the fresh
// definitions.
func (m *Manager) Reload() error {
	m.mu.Lock()
	m.definitions = make(map[string]*flow.FlowDefinition)
	m.compiled = make(map[string]*CompiledGraph)
	m.mu.Unlock()

	_, err := m.ScanFlows()
	return err
}

// Watch starts an fsnotify watcher over the flows directory; any write,
// create or remove event triggers a reload. Stop with Close.
func (m *Manager) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create flow watcher: %w", err)
	}
	m.watcher = watcher

	if err := watcher.Add(m.flowsDir); err != nil {
		watcher.Close()
		m.watcher = nil
		return fmt.Errorf("failed to watch flows directory: %w", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
					continue
				}
				slog.Info("Flow directory changed, reloading", "event", event.Op.String(), "path", filepath.Base(event.Name))
				if err := m.Reload(); err != nil {
					slog.Error("Flow reload failed", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Flow watcher error", "error", err)
			}
		}
	}()

	slog.Info("Watching flows directory for changes", "dir", m.flowsDir)
	return nil
}

// Close stops the watcher if one is running.
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

func (m *Manager) flowLock(name string) *sync.Mutex {
	m.compileMu.Lock()
	defer m.compileMu.Unlock()

	lock, ok := m.compiling[name]
	if !ok {
		lock = &sync.Mutex{}
		m.compiling[name] = lock
	}
	return lock
}
