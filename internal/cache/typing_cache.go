package cache

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// TypingStore keeps the latest typing signal per (thread, user). Entries
// are never swept by callers: readers compare timestamps against the TTL.
type TypingStore interface {
	SetTyping(tenantID, threadID, userID uint, at time.Time) error
	ClearTyping(tenantID, threadID, userID uint) error
	TypingSignals(tenantID, threadID uint) (map[uint]time.Time, error)
}

// TypingCache stores typing signals in one Redis hash per thread
// (field = user id, value = unix nanos). The hash key expires a little after
// the TTL so idle threads leave nothing behind.
type TypingCache struct {
	redis  *RedisCache
	keyTTL time.Duration
}

func NewTypingCache(redis *RedisCache, signalTTL time.Duration) *TypingCache {
	return &TypingCache{redis: redis, keyTTL: 2 * signalTTL}
}

func typingKey(tenantID, threadID uint) string {
	return fmt.Sprintf("typing:%d:%d", tenantID, threadID)
}

func (tc *TypingCache) SetTyping(tenantID, threadID, userID uint, at time.Time) error {
	return tc.redis.HashSetWithTTL(typingKey(tenantID, threadID), strconv.FormatUint(uint64(userID), 10), at.UnixNano(), tc.keyTTL)
}

func (tc *TypingCache) ClearTyping(tenantID, threadID, userID uint) error {
	return tc.redis.HashDelete(typingKey(tenantID, threadID), strconv.FormatUint(uint64(userID), 10))
}

func (tc *TypingCache) TypingSignals(tenantID, threadID uint) (map[uint]time.Time, error) {
	fields, err := tc.redis.HashGetAll(typingKey(tenantID, threadID))
	if err != nil {
		return nil, err
	}
	out := make(map[uint]time.Time, len(fields))
	for field, value := range fields {
		uid, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			continue
		}
		nanos, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		out[uint(uid)] = time.Unix(0, nanos)
	}
	return out, nil
}

type typingEntryKey struct {
	tenantID, threadID, userID uint
}

// MemoryTypingStore is the single-process fallback used when Redis is not
// reachable.
type MemoryTypingStore struct {
	mu      sync.RWMutex
	signals map[typingEntryKey]time.Time
}

func NewMemoryTypingStore() *MemoryTypingStore {
	return &MemoryTypingStore{signals: make(map[typingEntryKey]time.Time)}
}

func (s *MemoryTypingStore) SetTyping(tenantID, threadID, userID uint, at time.Time) error {
	s.mu.Lock()
	s.signals[typingEntryKey{tenantID, threadID, userID}] = at
	s.mu.Unlock()
	return nil
}

func (s *MemoryTypingStore) ClearTyping(tenantID, threadID, userID uint) error {
	s.mu.Lock()
	delete(s.signals, typingEntryKey{tenantID, threadID, userID})
	s.mu.Unlock()
	return nil
}

func (s *MemoryTypingStore) TypingSignals(tenantID, threadID uint) (map[uint]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint]time.Time)
	for k, at := range s.signals {
		if k.tenantID == tenantID && k.threadID == threadID {
			out[k.userID] = at
		}
	}
	return out, nil
}

// Prune drops signals older than cutoff. Reads never depend on it; it only
// bounds memory in long-running processes.
func (s *MemoryTypingStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, at := range s.signals {
		if at.Before(cutoff) {
			delete(s.signals, k)
			n++
		}
	}
	return n
}
