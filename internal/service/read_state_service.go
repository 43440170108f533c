package service

import (
	"log"
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/cache"
	"github.com/aledz7/df-graficas-sub017/internal/repository"
)

// ReadStateService owns the per-member watermark. Unread counts are always
// derived from messages and the watermark; the Redis copy only saves work.
type ReadStateService struct {
	threads  *ThreadService
	readRepo repository.ReadStateRepositoryInterface
	unread   cache.UnreadStore
	now      func() time.Time
}

func NewReadStateService(threads *ThreadService, readRepo repository.ReadStateRepositoryInterface, unread cache.UnreadStore) *ReadStateService {
	return &ReadStateService{
		threads:  threads,
		readRepo: readRepo,
		unread:   unread,
		now:      systemClock,
	}
}

type UnreadSummary struct {
	Total    int64          `json:"total"`
	ByThread map[uint]int64 `json:"by_thread"`
}

// MarkRead advances the caller's watermark to at (now when nil). Timestamps
// ahead of the server clock are clamped; earlier ones leave it unchanged.
func (s *ReadStateService) MarkRead(tenantID, threadID, userID uint, at *time.Time) error {
	thread, _, err := s.threads.Authorize(tenantID, threadID, userID)
	if err != nil {
		return err
	}

	now := s.now()
	mark := now
	if at != nil && !at.IsZero() && at.Before(now) {
		mark = at.UTC().Truncate(time.Microsecond)
	}
	if err := s.readRepo.AdvanceWatermark(thread.ID, userID, mark); err != nil {
		return err
	}
	if err := s.unread.Invalidate(tenantID, userID); err != nil {
		log.Printf("[chat] unread cache invalidate failed: %v", err)
	}
	return nil
}

func (s *ReadStateService) UnreadCount(tenantID, threadID, userID uint) (int64, error) {
	thread, _, err := s.threads.Authorize(tenantID, threadID, userID)
	if err != nil {
		return 0, err
	}
	return s.readRepo.CountUnread(tenantID, thread.ID, userID)
}

// UnreadCountAll aggregates unread messages over the caller's open
// (non-archived) threads. The cache generation is read before counting so a
// write that lands mid-count keeps the stale result out of the cache.
func (s *ReadStateService) UnreadCountAll(tenantID, userID uint) (*UnreadSummary, error) {
	if cached, ok := s.unread.Get(tenantID, userID); ok {
		return &UnreadSummary{Total: cached.Total, ByThread: cached.ByThread}, nil
	}
	gen, genErr := s.unread.Generation(tenantID, userID)

	byThread, err := s.readRepo.CountUnreadByThread(tenantID, userID)
	if err != nil {
		return nil, err
	}
	summary := &UnreadSummary{ByThread: byThread}
	for _, n := range byThread {
		summary.Total += n
	}

	if genErr != nil {
		log.Printf("[chat] unread cache generation failed: %v", genErr)
		return summary, nil
	}
	totals := cache.UnreadTotals{Total: summary.Total, ByThread: byThread, CachedAt: s.now()}
	if err := s.unread.SetIfCurrent(tenantID, userID, gen, totals); err != nil {
		log.Printf("[chat] unread cache set failed: %v", err)
	}
	return summary, nil
}
