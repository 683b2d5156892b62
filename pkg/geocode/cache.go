package geocode

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Cache memoizes lookup results for the process lifetime. Non-matches are
// cached too so known-bad addresses never hit the external service twice.
// Safe for concurrent use; cache hits bypass the client's rate gate.
type Cache struct {
	client Client

	mu      sync.RWMutex
	entries map[string]Result
}

// CacheStats describes the current cache contents.
type CacheStats struct {
	Size      int `json:"size"`
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
}

// NewCache wraps a Client with an in-memory result cache.
func NewCache(client Client) *Cache {
	return &Cache{
		client:  client,
		entries: make(map[string]Result),
	}
}

// Resolve returns the coordinate for an address, consulting the cache first.
// Empty input resolves to unmatched without an external call or cache write.
// Once an address resolves, the cached value is immutable until Clear.
func (c *Cache) Resolve(ctx context.Context, address string) (*Result, error) {
	key := strings.TrimSpace(address)
	if key == "" {
		return &Result{Matched: false}, nil
	}

	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return &cached, nil
	}

	result, err := c.client.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// Another goroutine may have resolved the same address meanwhile;
	// first write wins to keep entries immutable.
	if prior, exists := c.entries[key]; exists {
		result = &prior
	} else {
		c.entries[key] = *result
	}
	c.mu.Unlock()

	return result, nil
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]Result)
	c.mu.Unlock()
	zap.L().Info("geocode cache cleared", zap.Int("entries", n))
}

// Stats reports cache size broken down by outcome.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := CacheStats{Size: len(c.entries)}
	for _, r := range c.entries {
		if r.Matched {
			s.Matched++
		} else {
			s.Unmatched++
		}
	}
	return s
}
