package cache

import (
	"sync"
)

// AgentCache caches agent credentials and display names once they are known
// to avoid a store read on every authenticated poll.
// Agents are never deleted, so entries never go stale; only Verified and the
// counters change, and those are always read from the store.
type AgentCache struct {
	m      sync.Mutex
	Tokens map[string]string // token -> agent id
	Names  map[string]string // agent id -> name
}

func NewAgentCache() *AgentCache {
	return &AgentCache{
		m:      sync.Mutex{},
		Tokens: make(map[string]string),
		Names:  make(map[string]string),
	}
}

func (c *AgentCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.Tokens = make(map[string]string)
	c.Names = make(map[string]string)
}

// Add records an agent's token and name. An empty token only sets the name.
func (c *AgentCache) Add(id, name, token string) {
	c.m.Lock()
	defer c.m.Unlock()
	if token != "" {
		c.Tokens[token] = id
	}
	c.Names[id] = name
}

func (c *AgentCache) AgentForToken(token string) (string, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	id, ok := c.Tokens[token]
	return id, ok
}

func (c *AgentCache) Name(id string) (string, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	name, ok := c.Names[id]
	return name, ok
}

func (c *AgentCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.Names)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
