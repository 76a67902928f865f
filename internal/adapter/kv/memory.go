// internal/adapter/kv/memory.go

package kv

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryItem struct {
	value     string
	expiresAt time.Time
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// MemoryStore is a concurrent in-memory Store with a background janitor
// that evicts expired keys
type MemoryStore struct {
	mu     sync.Mutex
	items  map[string]memoryItem
	stopCh chan struct{}
	once   sync.Once
}

// NewMemoryStore creates a memory store and starts its cleanup loop
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		items:  make(map[string]memoryItem),
		stopCh: make(chan struct{}),
	}
	go s.cleanupExpired()
	return s
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok || item.expired(time.Now()) {
		delete(s.items, key)
		return "", ErrNotFound
	}
	return item.value, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := memoryItem{value: value}
	if ttl > 0 {
		item.expiresAt = time.Now().Add(ttl)
	}
	s.items[key] = item
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

func (s *MemoryStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	item, ok := s.items[key]
	if !ok || item.expired(now) {
		item = memoryItem{value: "0"}
		if ttl > 0 {
			item.expiresAt = now.Add(ttl)
		}
	}

	n, err := strconv.ParseInt(item.value, 10, 64)
	if err != nil {
		n = 0
	}
	n++
	item.value = strconv.FormatInt(n, 10)
	s.items[key] = item
	return n, nil
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stopCh) })
	return nil
}

func (s *MemoryStore) cleanupExpired() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, item := range s.items {
				if item.expired(now) {
					delete(s.items, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
