/* api.go
 * This file contains the public methods for interacting with this package. Every state change is a single store
 * transaction that reads the draft, applies a transition from the logic package and writes the result, so concurrent
 * callers can never lose each other's updates. Draft operations are in draft.go, publication in publish.go and the
 * server start in start.go
 * Authors: Zachary Bower
 */

package api

import (
	"context"
	"fmt"
	"inhouse-bot/api/external"
	"inhouse-bot/api/logic"
	"inhouse-bot/api/store"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// API provides methods for interacting with the match draft and the published match
type API struct {
	Store    store.Interface
	Rules    logic.Rules
	Config   Config
	Commands external.CommandSender
	Roster   external.RosterResolver
	Rand     logic.RandomSource
	Now      func() time.Time

	logger *zap.Logger

	mu        sync.RWMutex
	scheduler LeaderScheduler
}

// sharedRand uses the goroutine safe top level generator
type sharedRand struct{}

func (sharedRand) IntN(n int) int { return rand.IntN(n) }

// NewAPI creates a new API instance with the provided collaborators
// Preconditions: Receives the store, the command sender, the roster resolver, the config, the draft rules and a logger
// Postconditions: Returns the API, or an error if a required collaborator is missing
func NewAPI(s store.Interface, commands external.CommandSender, roster external.RosterResolver, cfg Config, rules logic.Rules, logger *zap.Logger) (*API, error) {
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}
	if rules.QueueSize != 2*rules.TeamSize {
		return nil, fmt.Errorf("queue size %d must be twice the team size %d", rules.QueueSize, rules.TeamSize)
	}
	if len(rules.MapPool) == 0 {
		return nil, fmt.Errorf("map pool cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}

	return &API{
		Store:    s,
		Rules:    rules,
		Config:   cfg,
		Commands: commands,
		Roster:   roster,
		Rand:     sharedRand{},
		Now:      time.Now,
		logger:   logger.Named("api"),
	}, nil
}

// SetLeaderScheduler registers the scheduler that JoinQueue notifies when the queue fills
func (a *API) SetLeaderScheduler(s LeaderScheduler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scheduler = s
}

func (a *API) leaderScheduler() LeaderScheduler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.scheduler
}

func (a *API) now() time.Time {
	return a.Now().UTC()
}

// GetDraft returns the draft, creating it in its initial state on first access
func (a *API) GetDraft(ctx context.Context) (store.Draft, error) {
	d, found, err := a.Store.GetDraft(ctx)
	if err != nil {
		return store.Draft{}, err
	}
	if found {
		return d, nil
	}

	err = a.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var found bool
		var err error
		d, found, err = tx.GetDraft(ctx)
		if err != nil || found {
			return err
		}
		d = store.NewDraft()
		return tx.SetDraft(ctx, d)
	})
	if err != nil {
		return store.Draft{}, fmt.Errorf("failed to create draft: %w", err)
	}
	a.logger.Info("created draft")
	return d, nil
}

// GetMatch returns the published match. found is false if nothing has ever been published
func (a *API) GetMatch(ctx context.Context) (store.Match, bool, error) {
	return a.Store.GetMatch(ctx)
}

// ResolveRoster maps player ids to display names through the roster resolver
func (a *API) ResolveRoster(ctx context.Context, playerIDs []string) (map[string]string, error) {
	if a.Roster == nil {
		return nil, fmt.Errorf("no roster resolver configured")
	}
	return a.Roster.ResolveNames(ctx, playerIDs)
}

// Helper that runs one draft transition inside a transaction. A missing draft is created before the transition is
// applied, no-op transitions write nothing, and reset transitions reset the published match in the same commit
// Preconditions: Receives context and the transition to apply
// Postconditions: Returns the draft as committed (or as read for a no-op) and whether anything was written
func (a *API) mutateDraft(ctx context.Context, apply func(store.Draft) (logic.Transition, error)) (store.Draft, logic.Transition, error) {
	var result logic.Transition
	var before store.Draft

	err := a.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		d, found, err := tx.GetDraft(ctx)
		if err != nil {
			return err
		}
		if !found {
			d = store.NewDraft()
		}
		before = d

		tr, err := apply(d)
		if err != nil {
			return err
		}
		result = tr
		if !tr.Changed {
			if !found {
				return tx.SetDraft(ctx, d)
			}
			return nil
		}

		if err := tx.SetDraft(ctx, tr.Draft); err != nil {
			return err
		}
		if tr.Reset {
			return tx.SetMatch(ctx, store.NewMatch())
		}
		return nil
	})
	if err != nil {
		return store.Draft{}, logic.Transition{}, err
	}
	return before, result, nil
}
