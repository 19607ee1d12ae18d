package graph

import (
	"sync"

	"github.com/GD25Workhome/gd25-biz-agent/pkg/llms"
)

// Checkpointer persists the reduced conversation (history plus the final
// assistant reply) across turns, keyed by thread id (the session id).
type Checkpointer interface {
	Load(threadID string) []llms.Message
	Save(threadID string, messages []llms.Message)
	Clear(threadID string)
}

// MemoryCheckpointer is the in-memory Checkpointer used by compiled
// graphs. One instance is shared per compiled graph; thread ids keep
// sessions apart.
type MemoryCheckpointer struct {
	mu      sync.RWMutex
	threads map[string][]llms.Message
}

// NewMemoryCheckpointer creates an empty in-memory checkpointer.
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{
		threads: make(map[string][]llms.Message),
	}
}

// Load returns a copy of the persisted conversation for a thread.
func (c *MemoryCheckpointer) Load(threadID string) []llms.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stored, ok := c.threads[threadID]
	if !ok {
		return nil
	}
	messages := make([]llms.Message, len(stored))
	copy(messages, stored)
	return messages
}

// Save replaces the persisted conversation for a thread.
func (c *MemoryCheckpointer) Save(threadID string, messages []llms.Message) {
	stored := make([]llms.Message, len(messages))
	copy(stored, messages)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.threads[threadID] = stored
}

// Clear drops the persisted conversation for a thread.
func (c *MemoryCheckpointer) Clear(threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.threads, threadID)
}

var _ Checkpointer = (*MemoryCheckpointer)(nil)
