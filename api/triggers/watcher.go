/* watcher.go
 * Contains the change watcher that reacts to committed draft and match writes. It drives three follow up actions:
 * leader selection once the deadline passes, publication when the draft becomes publishable and the server start when
 * the published match becomes ready. Edges are detected on the subscription goroutine so each rising edge runs its
 * action once, and the actions themselves run on their own goroutines so a slow command never holds up the stream
 * Authors: Zachary Bower
 */

package triggers

import (
	"context"
	"fmt"
	"inhouse-bot/api/api"
	"inhouse-bot/api/logic"
	"inhouse-bot/api/store"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Coordinator is the set of operations the watcher triggers. *api.API implements it
type Coordinator interface {
	LeaderSelector
	Publish(ctx context.Context) api.PublishResult
	StartMatchIfReady(ctx context.Context) api.StartResult
}

// Watcher subscribes to the draft and match documents and runs the follow up actions
type Watcher struct {
	Store   store.Interface
	Rules   logic.Rules
	Actions Coordinator
	Now     func() time.Time

	logger *zap.Logger

	publishEdge logic.Edge
	startEdge   logic.Edge

	mu         sync.Mutex
	pollTimer  *time.Timer
	pollTarget time.Time
	closed     bool

	wg sync.WaitGroup
}

// NewWatcher creates a watcher over the store that triggers actions on the coordinator
func NewWatcher(s store.Interface, rules logic.Rules, actions Coordinator, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		Store:   s,
		Rules:   rules,
		Actions: actions,
		Now:     time.Now,
		logger:  logger.Named("watcher"),
	}
}

// Run subscribes to both documents and blocks until ctx is done or a subscription fails. The first delivery of each
// subscription is the current document, so a draft that became publishable or a match that became ready while no
// watcher was running is picked up at startup
// Preconditions: Receives the lifetime context
// Postconditions: Returns nil once ctx is done and every action it started has returned, or the subscription error
func (w *Watcher) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	failed := make(chan error, 2)
	onError := func(err error) {
		select {
		case failed <- err:
		default:
		}
	}

	stopDraft, err := w.Store.SubscribeDraft(runCtx, func(c store.Change[store.Draft]) {
		w.onDraft(runCtx, c)
	}, onError)
	if err != nil {
		return fmt.Errorf("failed to subscribe to draft: %w", err)
	}
	defer stopDraft()

	stopMatch, err := w.Store.SubscribeMatch(runCtx, func(c store.Change[store.Match]) {
		w.onMatch(runCtx, c)
	}, onError)
	if err != nil {
		return fmt.Errorf("failed to subscribe to match: %w", err)
	}
	defer stopMatch()

	w.logger.Info("watching draft and match")

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-failed:
		runErr = fmt.Errorf("subscription stopped: %w", err)
	}

	cancel()
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.stopPoll()
	w.wg.Wait()
	return runErr
}

// Function that handles one committed draft write
// Preconditions: Called in commit order on the draft subscription goroutine
// Postconditions: Arms or disarms the leader poll and starts a publication on a publishable rising edge
func (w *Watcher) onDraft(ctx context.Context, c store.Change[store.Draft]) {
	if c.After == nil {
		w.publishEdge.Observe(false)
		w.stopPoll()
		return
	}
	d := *c.After

	if d.State == store.StateSelectingLeaders && d.Team1.Leader() == "" && d.Team2.Leader() == "" && d.LeaderSelectionAt != nil {
		w.armPoll(ctx, *d.LeaderSelectionAt)
	} else {
		w.stopPoll()
	}

	if w.publishEdge.Observe(w.Rules.ReadyToPublish(d)) {
		w.logger.Info("draft became publishable", zap.Int64("version", d.Version))
		w.spawn(func() {
			res := w.Actions.Publish(ctx)
			fields := []zap.Field{zap.String("status", string(res.Status))}
			if res.Err != nil {
				fields = append(fields, zap.Error(res.Err))
			}
			w.logger.Info("publication finished", fields...)
		})
	}
}

// Function that handles one committed match write
// Preconditions: Called in commit order on the match subscription goroutine
// Postconditions: Starts the server start on a ready rising edge
func (w *Watcher) onMatch(ctx context.Context, c store.Change[store.Match]) {
	ready := c.After != nil && w.Rules.MatchReady(*c.After)
	if !w.startEdge.Observe(ready) {
		return
	}

	w.logger.Info("match became ready", zap.Int64("version", c.After.Version))
	w.spawn(func() {
		res := w.Actions.StartMatchIfReady(ctx)
		fields := []zap.Field{zap.String("status", string(res.Status))}
		if res.ConfigURL != "" {
			fields = append(fields, zap.String("configUrl", res.ConfigURL))
		}
		if res.Err != nil {
			fields = append(fields, zap.Error(res.Err))
		}
		w.logger.Info("server start finished", fields...)
	})
}

// Helper that arms the leader poll for the deadline. Re-arming for the same deadline keeps the existing timer
func (w *Watcher) armPoll(ctx context.Context, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || ctx.Err() != nil {
		return
	}
	if w.pollTimer != nil && w.pollTarget.Equal(at) {
		return
	}
	if w.pollTimer != nil {
		w.pollTimer.Stop()
	}

	delay := at.Sub(w.Now())
	if delay < 0 {
		delay = 0
	}
	w.pollTarget = at
	w.pollTimer = time.AfterFunc(delay, func() {
		w.spawn(func() {
			if _, err := w.Actions.SelectLeaders(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("leader poll failed", zap.Error(err))
			}
		})
	})
}

func (w *Watcher) stopPoll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pollTimer != nil {
		w.pollTimer.Stop()
		w.pollTimer = nil
	}
	w.pollTarget = time.Time{}
}

// Helper that runs fn on a goroutine Run waits for. Nothing is started once Run is shutting down
func (w *Watcher) spawn(fn func()) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()
	go func() {
		defer w.wg.Done()
		fn()
	}()
}
