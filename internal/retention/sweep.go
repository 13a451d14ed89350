// Package retention permanently deletes journal records whose soft-delete
// grace period has lapsed. Soft-deleted people, reminders, and notes stay
// restorable for RetentionDays, then a daily sweep marks them permanently
// deleted so reads stop returning them.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RetentionDays is how long a soft-deleted record stays restorable.
const RetentionDays = 30

const sweepInterval = 24 * time.Hour

// Sweepable is implemented by stores whose rows carry soft-delete
// timestamps. It returns how many rows were newly marked.
type Sweepable interface {
	MarkExpiredPermanentlyDeleted(cutoff, now time.Time) (int64, error)
}

// Sweeper runs the daily retention sweep across all soft-deletable stores.
type Sweeper struct {
	stores map[string]Sweepable
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(logger *slog.Logger, stores map[string]Sweepable) *Sweeper {
	return &Sweeper{
		stores: stores,
		logger: logger,
		now:    time.Now,
	}
}

// Start launches the background sweep loop. An immediate sweep runs on
// startup so a long-stopped server catches up right away.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		s.Sweep()

		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Stop cancels the loop and waits for any in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Sweep marks every record soft-deleted more than RetentionDays ago as
// permanently deleted. A failure in one store does not stop the others.
func (s *Sweeper) Sweep() {
	now := s.now()
	cutoff := now.AddDate(0, 0, -RetentionDays)

	for name, store := range s.stores {
		n, err := store.MarkExpiredPermanentlyDeleted(cutoff, now)
		if err != nil {
			s.logger.Error("retention sweep", "store", name, "error", err)
			continue
		}
		if n > 0 {
			s.logger.Info("retention sweep", "store", name, "purged", n)
		}
	}
}
