package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// Entry is a cached snapshot and when it was stored
type Entry[T any] struct {
	Value     T
	Timestamp time.Time
}

// Age returns how long ago the entry was stored.
func (e Entry[T]) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// Snapshots holds the latest snapshot per key. Values are replaced whole, never patched.
type Snapshots[T any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[T]
	now     func() time.Time
}

// New creates an empty snapshot cache.
func New[T any]() *Snapshots[T] {
	return &Snapshots[T]{
		entries: make(map[string]Entry[T]),
		now:     time.Now,
	}
}

// Get returns the snapshot stored under key.
func (s *Snapshots[T]) Get(key string) (Entry[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// Put replaces the snapshot under key.
func (s *Snapshots[T]) Put(key string, value T) Entry[T] {
	e := Entry[T]{Value: value, Timestamp: s.now()}
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return e
}

func (s *Snapshots[T]) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len returns the number of cached keys.
func (s *Snapshots[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// GenerateKey derives a stable key from parts so secrets such as tokens are never kept verbatim.
func GenerateKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
