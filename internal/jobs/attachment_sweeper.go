package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/aledz7/df-graficas-sub017/internal/service"
)

// Reconciler removes stored attachment objects no message references.
type Reconciler interface {
	ReconcileAttachments(ctx context.Context, olderThan time.Duration) (*service.ReconcileReport, error)
}

// AttachmentSweeper runs attachment reconciliation on a cron schedule.
// Runs never overlap; a tick that arrives during a run is skipped.
type AttachmentSweeper struct {
	reconciler Reconciler
	cronExpr   string
	grace      time.Duration

	mu      sync.Mutex
	running bool
}

func NewAttachmentSweeper(reconciler Reconciler, cronExpr string, grace time.Duration) (*AttachmentSweeper, error) {
	if cronExpr == "" {
		cronExpr = "*/30 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid attachment sweep cron expression: %s", cronExpr)
	}
	if grace <= 0 {
		grace = time.Hour
	}
	return &AttachmentSweeper{reconciler: reconciler, cronExpr: cronExpr, grace: grace}, nil
}

// Start launches the scheduler and returns a func that stops it.
func (s *AttachmentSweeper) Start(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	log.Printf("[sweeper] attachment sweep scheduled (%s, grace %s)", s.cronExpr, s.grace)
	go s.runScheduler(ctx)
	return cancel
}

func (s *AttachmentSweeper) runScheduler(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(s.cronExpr, time.Now().UTC(), false)
		if err != nil {
			log.Printf("[sweeper] next tick for %q failed: %v", s.cronExpr, err)
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-time.After(time.Until(next)):
			go func() {
				if _, err := s.RunOnce(ctx); err != nil {
					log.Printf("[sweeper] attachment sweep failed: %v", err)
				}
			}()
		case <-ctx.Done():
			log.Printf("[sweeper] stopping")
			return
		}
	}
}

// RunOnce performs one reconciliation pass. It returns a nil report when a
// pass is already in progress.
func (s *AttachmentSweeper) RunOnce(ctx context.Context) (*service.ReconcileReport, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	started := time.Now()
	report, err := s.reconciler.ReconcileAttachments(ctx, s.grace)
	if err != nil {
		return nil, err
	}
	log.Printf("[sweeper] scanned=%d removed=%d missing=%d in %s", report.Scanned, report.Removed, len(report.MissingObjects), time.Since(started).Round(time.Millisecond))
	return report, nil
}
