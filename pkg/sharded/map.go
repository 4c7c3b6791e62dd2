package sharded

import (
	"sync"
)

type mapShard struct {
	mu    sync.RWMutex
	items map[string]any
}

// Map is a sharded concurrent map keyed by string.
type Map struct {
	shards [numShards]mapShard
}

// NewMap creates an empty sharded map.
func NewMap() *Map {
	m := &Map{}
	for i := range m.shards {
		m.shards[i].items = make(map[string]any)
	}
	return m
}

func (m *Map) shard(key string) *mapShard {
	return &m.shards[shardIndex(key)]
}

// Store adds a key-value pair to the map.
func (m *Map) Store(key string, value any) {
	shard := m.shard(key)
	shard.mu.Lock()
	shard.items[key] = value
	shard.mu.Unlock()
}

// Load retrieves the value associated with a key.
// It returns the value and a boolean indicating if the key was present.
func (m *Map) Load(key string) (value any, ok bool) {
	shard := m.shard(key)
	shard.mu.RLock()
	value, ok = shard.items[key]
	shard.mu.RUnlock()
	return value, ok
}

// Has checks only for the presence of a key.
func (m *Map) Has(key string) bool {
	shard := m.shard(key)
	shard.mu.RLock()
	_, exists := shard.items[key]
	shard.mu.RUnlock()
	return exists
}

// Delete removes a key from the map.
func (m *Map) Delete(key string) {
	shard := m.shard(key)
	shard.mu.Lock()
	delete(shard.items, key)
	shard.mu.Unlock()
}

// Count returns the total number of elements in the map.
func (m *Map) Count() int {
	count := 0
	for i := range m.shards {
		shard := &m.shards[i]
		shard.mu.RLock()
		count += len(shard.items)
		shard.mu.RUnlock()
	}
	return count
}

// Keys returns a slice of all keys in the map.
// The order of keys is not guaranteed.
func (m *Map) Keys() []string {
	keys := make([]string, 0, m.Count())
	for i := range m.shards {
		shard := &m.shards[i]
		shard.mu.RLock()
		for k := range shard.items {
			keys = append(keys, k)
		}
		shard.mu.RUnlock()
	}
	return keys
}

// Items returns a map containing all key-value pairs.
// This creates a snapshot of the map's data at the time of the call.
func (m *Map) Items() map[string]any {
	items := make(map[string]any, m.Count())
	for i := range m.shards {
		shard := &m.shards[i]
		shard.mu.RLock()
		for k, v := range shard.items {
			items[k] = v
		}
		shard.mu.RUnlock()
	}
	return items
}
