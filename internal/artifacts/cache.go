// Package artifacts caches derived renderings of a pathway (diagrams, exports)
// under the content hash of the graph they were derived from.
package artifacts

import (
	"context"
	"sort"
	"sync"
)

// Key identifies one artifact of one graph version.
type Key struct {
	Hash string `json:"hash"`
	Kind string `json:"kind"` // e.g. "diagram/mermaid"
}

func (k Key) String() string {
	return k.Hash + ":" + k.Kind
}

// Cache stores artifact bytes by Key. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Put(ctx context.Context, key Key, data []byte) error
	// Invalidate drops every artifact derived from the graph with the given hash.
	Invalidate(ctx context.Context, hash string) error
	Keys(ctx context.Context) ([]Key, error)
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu     sync.RWMutex
	byHash map[string]map[string][]byte
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{byHash: make(map[string]map[string][]byte)}
}

// Get returns a copy of the cached bytes.
func (c *MemoryCache) Get(_ context.Context, key Key) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.byHash[key.Hash][key.Kind]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// Put stores a copy of data.
func (c *MemoryCache) Put(_ context.Context, key Key, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds, ok := c.byHash[key.Hash]
	if !ok {
		kinds = make(map[string][]byte)
		c.byHash[key.Hash] = kinds
	}
	kinds[key.Kind] = append([]byte(nil), data...)
	return nil
}

// Invalidate drops every artifact for hash.
func (c *MemoryCache) Invalidate(_ context.Context, hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byHash, hash)
	return nil
}

// Keys lists cached keys sorted by hash then kind.
func (c *MemoryCache) Keys(_ context.Context) ([]Key, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var keys []Key
	for hash, kinds := range c.byHash {
		for kind := range kinds {
			keys = append(keys, Key{Hash: hash, Kind: kind})
		}
	}
	sortKeys(keys)
	return keys, nil
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Hash != keys[j].Hash {
			return keys[i].Hash < keys[j].Hash
		}
		return keys[i].Kind < keys[j].Kind
	})
}
