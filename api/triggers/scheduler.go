/* scheduler.go
 * Contains the deferred leader selection task. JoinQueue hands the scheduler the selection deadline when the queue
 * fills and the scheduler calls SelectLeaders once it has passed. SelectLeaders is guarded by the draft state, so the
 * scheduler racing the watcher's poll or a second process can never select leaders twice
 * Authors: Zachary Bower
 */

package triggers

import (
	"context"
	"errors"
	"inhouse-bot/api/logic"
	"inhouse-bot/api/store"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxAttempts is how many times a due selection is tried before giving up
	DefaultMaxAttempts = 3
	// DefaultBackoff is the wait after the first failed attempt. It doubles for each attempt after that
	DefaultBackoff = 500 * time.Millisecond
)

// LeaderSelector is the operation the scheduler runs at the deadline
type LeaderSelector interface {
	SelectLeaders(ctx context.Context) (store.Draft, error)
}

// Scheduler runs SelectLeaders at each deadline it is given. Deadlines are deduplicated so the same queue filling
// event reported twice only runs one task
type Scheduler struct {
	MaxAttempts int
	Backoff     time.Duration
	Now         func() time.Time

	selector LeaderSelector
	logger   *zap.Logger
	ctx      context.Context

	mu      sync.Mutex
	pending map[int64]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler whose tasks run until ctx is done
// Preconditions: Receives the lifetime context, the leader selector and a logger
// Postconditions: Returns the scheduler with the default attempts and backoff
func NewScheduler(ctx context.Context, selector LeaderSelector, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoff,
		Now:         time.Now,
		selector:    selector,
		logger:      logger.Named("scheduler"),
		ctx:         ctx,
		pending:     make(map[int64]*time.Timer),
	}
}

// Schedule arms a task for the deadline at. A deadline that has already passed runs immediately, and a deadline that
// is already armed is ignored
func (s *Scheduler) Schedule(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.ctx.Err() != nil {
		return
	}

	key := at.UnixNano()
	if _, ok := s.pending[key]; ok {
		return
	}

	delay := at.Sub(s.Now())
	if delay < 0 {
		delay = 0
	}
	s.wg.Add(1)
	s.pending[key] = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		defer s.forget(key)
		s.run(at)
	})
	s.logger.Debug("leader selection scheduled", zap.Time("at", at), zap.Duration("in", delay))
}

// Pending returns how many tasks are armed or running
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every armed task and waits for running ones to return. Schedule is a no-op afterwards
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for key, t := range s.pending {
		if t.Stop() {
			// The task never ran so it never calls Done itself
			s.wg.Done()
			delete(s.pending, key)
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) forget(key int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
}

// Function that tries the selection up to MaxAttempts times
// Preconditions: The deadline has passed according to the scheduler's clock
// Postconditions: Leaders are selected, the draft already moved on, or the failure has been logged
func (s *Scheduler) run(at time.Time) {
	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := s.Backoff

	for attempt := 1; attempt <= attempts; attempt++ {
		if s.ctx.Err() != nil {
			return
		}

		d, err := s.selector.SelectLeaders(s.ctx)
		if err == nil {
			s.logger.Info("leader selection ran",
				zap.Time("deadline", at),
				zap.String("state", string(d.State)),
				zap.Int("attempt", attempt))
			return
		}
		if logic.IsValidation(err) {
			s.logger.Warn("leader selection rejected", zap.Error(err))
			return
		}

		// Conflicts, store errors and an early call caused by clock skew are worth another try
		s.logger.Warn("leader selection failed",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Bool("tooEarly", errors.Is(err, logic.ErrTooEarly)))
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-s.ctx.Done():
			return
		}
		backoff *= 2
	}
	s.logger.Error("giving up on leader selection, the watcher poll will retry on the next draft change",
		zap.Time("deadline", at))
}
