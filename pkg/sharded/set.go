package sharded

import (
	"sync"
)

type setShard struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// Set is a sharded concurrent set of strings.
type Set struct {
	shards [numShards]setShard
}

// NewSet creates an empty sharded set.
func NewSet() *Set {
	s := &Set{}
	for i := range s.shards {
		s.shards[i].items = make(map[string]struct{})
	}
	return s
}

func (s *Set) shard(key string) *setShard {
	return &s.shards[shardIndex(key)]
}

// Store adds a key to the set.
func (s *Set) Store(key string) {
	shard := s.shard(key)
	shard.mu.Lock()
	shard.items[key] = struct{}{}
	shard.mu.Unlock()
}

// Has checks for the presence of a key.
func (s *Set) Has(key string) bool {
	shard := s.shard(key)
	shard.mu.RLock()
	_, exists := shard.items[key]
	shard.mu.RUnlock()
	return exists
}

// LoadOrStore adds the key and reports whether it was already present.
func (s *Set) LoadOrStore(key string) (loaded bool) {
	shard := s.shard(key)
	shard.mu.Lock()
	_, loaded = shard.items[key]
	if !loaded {
		shard.items[key] = struct{}{}
	}
	shard.mu.Unlock()
	return loaded
}

// Delete removes a key from the set.
func (s *Set) Delete(key string) {
	shard := s.shard(key)
	shard.mu.Lock()
	delete(shard.items, key)
	shard.mu.Unlock()
}

// Count returns the total number of elements in the set.
func (s *Set) Count() int {
	count := 0
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.RLock()
		count += len(shard.items)
		shard.mu.RUnlock()
	}
	return count
}

// Keys returns a slice of all keys in the set.
// The order of keys is not guaranteed.
func (s *Set) Keys() []string {
	keys := make([]string, 0, s.Count())
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.RLock()
		for k := range shard.items {
			keys = append(keys, k)
		}
		shard.mu.RUnlock()
	}
	return keys
}
