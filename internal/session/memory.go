package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	c         Compose
	expiresAt time.Time
}

// memoryStore 单进程使用（未配置 redis 时）
type memoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]memoryEntry
}

func NewMemoryStore(ttl time.Duration) Store {
	return newMemoryStore(ttl, time.Now)
}

func newMemoryStore(ttl time.Duration, now func() time.Time) *memoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &memoryStore{ttl: ttl, now: now, entries: make(map[int64]memoryEntry)}
}

func (s *memoryStore) Begin(ctx context.Context, userID, receiverID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.entries[userID] = memoryEntry{c: Compose{ReceiverID: receiverID, StartedAt: now.UTC()}, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *memoryStore) Get(ctx context.Context, userID int64) (Compose, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.lookup(userID)
	return c, ok, nil
}

func (s *memoryStore) Take(ctx context.Context, userID int64) (Compose, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.lookup(userID)
	delete(s.entries, userID)
	return c, ok, nil
}

func (s *memoryStore) Clear(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}

// lookup 调用方持有锁；过期条目顺带清理
func (s *memoryStore) lookup(userID int64) (Compose, bool) {
	e, ok := s.entries[userID]
	if !ok {
		return Compose{}, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, userID)
		return Compose{}, false
	}
	return e.c, true
}
