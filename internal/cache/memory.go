package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	v   []byte
	exp time.Time
}

// Memory is a process-local ViewCache with a fixed TTL.
type Memory struct {
	mu   sync.RWMutex
	data map[string]entry
	gens map[string]uint64
	ttl  time.Duration
	now  func() time.Time
}

// NewMemory creates an in-memory cache whose entries expire after ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{data: make(map[string]entry), gens: make(map[string]uint64), ttl: ttl, now: time.Now}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.now().After(e.exp) {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.v, true, nil
}

func (c *Memory) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	c.data[key] = entry{v: value, exp: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *Memory) Generation(_ context.Context, path string) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[cleanPath(path)], nil
}

// InvalidatePath bumps the generation of path and of every path below it,
// then drops their entries.
func (c *Memory) InvalidatePath(_ context.Context, path string) error {
	path = cleanPath(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[path]++
	for p := range c.gens {
		if p != path && underPath(p, path) {
			c.gens[p]++
		}
	}
	for k := range c.data {
		if underPath(k, path) {
			delete(c.data, k)
		}
	}
	return nil
}
