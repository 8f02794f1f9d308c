package cache

import (
	"container/list"
	"sync"
	"time"
)

// lruEntry is one L1 cache slot. A zero deadline never expires.
type lruEntry struct {
	key      string
	value    []byte
	deadline time.Time
}

// LRU is a thread-safe, entry-count-bounded in-process cache with
// per-entry deadlines. Reads at or past an entry's deadline are misses.
type LRU struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[string]*list.Element
}

// NewLRU creates an LRU bounded to capacity entries. Capacity values
// below one fall back to a single slot.
func NewLRU(capacity int) *LRU {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns the live value for key. An entry read at or after its
// deadline is removed and reported as a miss.
func (l *LRU) Get(key string, now time.Time) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	element, ok := l.items[key]
	if !ok {
		return nil, false
	}
	entry := element.Value.(*lruEntry)
	if !entry.deadline.IsZero() && !now.Before(entry.deadline) {
		l.order.Remove(element)
		delete(l.items, key)
		return nil, false
	}
	l.order.MoveToFront(element)
	return entry.value, true
}

// Put inserts or replaces the value for key, evicting the least recently
// used entry when the cache is full.
func (l *LRU) Put(key string, value []byte, deadline time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if element, ok := l.items[key]; ok {
		entry := element.Value.(*lruEntry)
		entry.value = value
		entry.deadline = deadline
		l.order.MoveToFront(element)
		return
	}

	if l.order.Len() >= l.capacity {
		oldest := l.order.Back()
		if oldest != nil {
			l.order.Remove(oldest)
			delete(l.items, oldest.Value.(*lruEntry).key)
		}
	}
	l.items[key] = l.order.PushFront(&lruEntry{key: key, value: value, deadline: deadline})
}

// Delete removes the entry for key if present.
func (l *LRU) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if element, ok := l.items[key]; ok {
		l.order.Remove(element)
		delete(l.items, key)
	}
}

// Len reports the current number of entries.
func (l *LRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}
