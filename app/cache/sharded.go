package cache

import (
	"hash/maphash"
	"sync"
)

const defaultShardCount = 32

// Map is a string-keyed concurrent map split across independently locked
// shards. Operations on different keys rarely contend.
type Map[V any] struct {
	seed   maphash.Seed
	shards []*shard[V]
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

func New[V any]() *Map[V] {
	return NewWithShards[V](defaultShardCount)
}

func NewWithShards[V any](count int) *Map[V] {
	if count < 1 {
		count = 1
	}

	m := &Map[V]{
		seed:   maphash.MakeSeed(),
		shards: make([]*shard[V], count),
	}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) shardFor(key string) *shard[V] {
	return m.shards[maphash.String(m.seed, key)%uint64(len(m.shards))]
}

func (m *Map[V]) Get(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.items[key]
	return v, ok
}

func (m *Map[V]) Set(key string, value V) {
	s := m.shardFor(key)
	s.mu.Lock()
	s.items[key] = value
	s.mu.Unlock()
}

func (m *Map[V]) Delete(key string) {
	s := m.shardFor(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Update atomically replaces the value stored under key with the result of fn.
// fn runs with the shard lock held and must not call back into the map.
func (m *Map[V]) Update(key string, fn func(current V, exists bool) V) V {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.items[key]
	next := fn(current, exists)
	s.items[key] = next
	return next
}

func (m *Map[V]) Len() int {
	total := 0
	for _, s := range m.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Range calls fn for each entry until fn returns false. Each shard is read
// under its own lock, so the view is not a consistent snapshot across shards.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

func (m *Map[V]) Snapshot() map[string]V {
	out := make(map[string]V, m.Len())
	m.Range(func(k string, v V) bool {
		out[k] = v
		return true
	})
	return out
}
