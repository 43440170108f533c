package cache

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	UnreadCountTTL = 1 * time.Minute
	// generationTTL outlives any in-flight count by a wide margin; every
	// invalidation refreshes it.
	generationTTL = 24 * time.Hour
)

// UnreadTotals is the cached aggregate for one user.
type UnreadTotals struct {
	Total    int64          `msgpack:"t"`
	ByThread map[uint]int64 `msgpack:"b"`
	CachedAt time.Time      `msgpack:"c"`
}

// UnreadStore caches per-user unread aggregates. Writers bump a per-user
// generation on Invalidate; a reader captures the generation before it
// counts and SetIfCurrent drops the result when the generation moved.
type UnreadStore interface {
	Get(tenantID, userID uint) (*UnreadTotals, bool)
	Generation(tenantID, userID uint) (int64, error)
	SetIfCurrent(tenantID, userID uint, gen int64, totals UnreadTotals) error
	Invalidate(tenantID uint, userIDs ...uint) error
}

// UnreadCache is the Redis UnreadStore. It is an accelerator only: a nil
// cache or a Redis failure behaves like a miss.
type UnreadCache struct {
	redis *RedisCache
}

func NewUnreadCache(redis *RedisCache) *UnreadCache {
	return &UnreadCache{redis: redis}
}

func unreadKey(tenantID, userID uint) string {
	return fmt.Sprintf("unread:%d:%d", tenantID, userID)
}

func unreadGenKey(tenantID, userID uint) string {
	return fmt.Sprintf("unread:gen:%d:%d", tenantID, userID)
}

// setIfCurrentScript writes KEYS[2] only while KEYS[1] still holds ARGV[1].
var setIfCurrentScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[1])
if not gen then gen = '0' end
if gen ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

func (uc *UnreadCache) enabled() bool {
	return uc != nil && uc.redis != nil
}

func (uc *UnreadCache) Get(tenantID, userID uint) (*UnreadTotals, bool) {
	if !uc.enabled() {
		return nil, false
	}
	data, err := uc.redis.Get(unreadKey(tenantID, userID))
	if err != nil || data == nil {
		return nil, false
	}

	var totals UnreadTotals
	if err := msgpack.Unmarshal(data, &totals); err != nil {
		return nil, false
	}
	return &totals, true
}

func (uc *UnreadCache) Generation(tenantID, userID uint) (int64, error) {
	if !uc.enabled() {
		return 0, nil
	}
	gen, err := uc.redis.client.Get(uc.redis.ctx, unreadGenKey(tenantID, userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (uc *UnreadCache) SetIfCurrent(tenantID, userID uint, gen int64, totals UnreadTotals) error {
	if !uc.enabled() {
		return nil
	}
	data, err := msgpack.Marshal(totals)
	if err != nil {
		return err
	}
	keys := []string{unreadGenKey(tenantID, userID), unreadKey(tenantID, userID)}
	args := []interface{}{strconv.FormatInt(gen, 10), data, UnreadCountTTL.Milliseconds()}
	return setIfCurrentScript.Run(uc.redis.ctx, uc.redis.client, keys, args...).Err()
}

// Invalidate bumps the generation and drops the aggregate of every listed
// user in one transaction.
func (uc *UnreadCache) Invalidate(tenantID uint, userIDs ...uint) error {
	if !uc.enabled() || len(userIDs) == 0 {
		return nil
	}
	pipe := uc.redis.client.TxPipeline()
	for _, id := range userIDs {
		genKey := unreadGenKey(tenantID, id)
		pipe.Incr(uc.redis.ctx, genKey)
		pipe.Expire(uc.redis.ctx, genKey, generationTTL)
		pipe.Del(uc.redis.ctx, unreadKey(tenantID, id))
	}
	_, err := pipe.Exec(uc.redis.ctx)
	return err
}

type unreadEntry struct {
	totals    UnreadTotals
	expiresAt time.Time
}

// MemoryUnreadStore is the in-process UnreadStore used when Redis is not
// configured. It follows the same generation rules as UnreadCache.
type MemoryUnreadStore struct {
	mu      sync.Mutex
	gens    map[string]int64
	entries map[string]unreadEntry
	now     func() time.Time
}

func NewMemoryUnreadStore() *MemoryUnreadStore {
	return &MemoryUnreadStore{
		gens:    make(map[string]int64),
		entries: make(map[string]unreadEntry),
		now:     time.Now,
	}
}

func (m *MemoryUnreadStore) Get(tenantID, userID uint) (*UnreadTotals, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := unreadKey(tenantID, userID)
	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	totals := entry.totals
	return &totals, true
}

func (m *MemoryUnreadStore) Generation(tenantID, userID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens[unreadGenKey(tenantID, userID)], nil
}

func (m *MemoryUnreadStore) SetIfCurrent(tenantID, userID uint, gen int64, totals UnreadTotals) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens[unreadGenKey(tenantID, userID)] != gen {
		return nil
	}
	m.entries[unreadKey(tenantID, userID)] = unreadEntry{totals: totals, expiresAt: m.now().Add(UnreadCountTTL)}
	return nil
}

func (m *MemoryUnreadStore) Invalidate(tenantID uint, userIDs ...uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range userIDs {
		m.gens[unreadGenKey(tenantID, id)]++
		delete(m.entries, unreadKey(tenantID, id))
	}
	return nil
}
