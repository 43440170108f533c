package service

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/cache"
	"github.com/aledz7/df-graficas-sub017/internal/metrics"
	"golang.org/x/time/rate"
)

type typingKey struct {
	tenantID, threadID, userID uint
}

// TypingService records short-lived "is typing" signals. Nothing is swept:
// a signal older than the TTL is simply ignored on read.
type TypingService struct {
	threads     *ThreadService
	store       cache.TypingStore
	ttl         time.Duration
	minInterval time.Duration
	now         func() time.Time

	mu       sync.Mutex
	limiters map[typingKey]*rate.Limiter
}

func NewTypingService(threads *ThreadService, store cache.TypingStore, ttl, minInterval time.Duration) *TypingService {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	// A refresh interval at or above the TTL would let a continuously
	// typing user blink out between writes.
	if minInterval >= ttl {
		minInterval = ttl / 2
	}
	return &TypingService{
		threads:     threads,
		store:       store,
		ttl:         ttl,
		minInterval: minInterval,
		now:         systemClock,
		limiters:    make(map[typingKey]*rate.Limiter),
	}
}

func (s *TypingService) allow(key typingKey, at time.Time) bool {
	if s.minInterval <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		if len(s.limiters) > 10000 {
			s.limiters = make(map[typingKey]*rate.Limiter)
		}
		l = rate.NewLimiter(rate.Every(s.minInterval), 1)
		s.limiters[key] = l
	}
	return l.AllowN(at, 1)
}

func (s *TypingService) forget(key typingKey) {
	s.mu.Lock()
	delete(s.limiters, key)
	s.mu.Unlock()
}

// SetTyping upserts (isTyping) or clears the caller's signal. Repeated
// starts inside the throttle interval skip the store write; a stop always
// goes through.
func (s *TypingService) SetTyping(tenantID, threadID, userID uint, isTyping bool) error {
	thread, _, err := s.threads.Authorize(tenantID, threadID, userID)
	if err != nil {
		return err
	}
	key := typingKey{tenantID, thread.ID, userID}

	if !isTyping {
		s.forget(key)
		metrics.TypingWrites.WithLabelValues("cleared").Inc()
		return s.store.ClearTyping(tenantID, thread.ID, userID)
	}

	now := s.now()
	if !s.allow(key, now) {
		metrics.TypingWrites.WithLabelValues("throttled").Inc()
		return nil
	}
	metrics.TypingWrites.WithLabelValues("stored").Inc()
	return s.store.SetTyping(tenantID, thread.ID, userID, now)
}

// TypingUsers returns the members typing as of now, excluding the viewer,
// in ascending id order.
func (s *TypingService) TypingUsers(tenantID, threadID, viewerID uint) ([]uint, error) {
	thread, _, err := s.threads.Authorize(tenantID, threadID, viewerID)
	if err != nil {
		return nil, err
	}
	signals, err := s.store.TypingSignals(tenantID, thread.ID)
	if err != nil {
		// Presence is best effort; a cache outage reads as nobody typing.
		log.Printf("[chat] typing signals unavailable for thread %d: %v", thread.ID, err)
		return []uint{}, nil
	}

	now := s.now()
	out := make([]uint, 0, len(signals))
	for userID, at := range signals {
		if userID == viewerID || now.Sub(at) > s.ttl {
			continue
		}
		if _, ok := thread.Member(userID); !ok {
			continue
		}
		out = append(out, userID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
