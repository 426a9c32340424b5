/* draft.go
 * This file contains the draft operations: queueing, leader selection, picks, map bans, finalization and cancel
 * Authors: Zachary Bower
 */

package api

import (
	"context"
	"fmt"
	"inhouse-bot/api/logic"
	"inhouse-bot/api/store"

	"go.uber.org/zap"
)

// JoinQueue adds a player to the queue. When the player fills the queue the leader scheduler is given the deadline
// Preconditions: Receives context and the player id
// Postconditions: Returns the resulting draft, or a validation error from the logic package, or a store error
func (a *API) JoinQueue(ctx context.Context, playerID string) (store.Draft, error) {
	now := a.now()
	before, tr, err := a.mutateDraft(ctx, func(d store.Draft) (logic.Transition, error) {
		return logic.JoinQueue(d, a.Rules, playerID, now)
	})
	if err != nil {
		return store.Draft{}, err
	}
	if tr.Changed {
		a.logger.Info("player joined queue", zap.String("player", playerID), zap.Int("queued", len(tr.Draft.Queue)))
	}

	// This join filled the queue
	if before.State == store.StateAwaitingPlayers && tr.Draft.State == store.StateSelectingLeaders && tr.Draft.LeaderSelectionAt != nil {
		a.logger.Info("queue full, leader selection scheduled", zap.Time("at", *tr.Draft.LeaderSelectionAt))
		if s := a.leaderScheduler(); s != nil {
			s.Schedule(*tr.Draft.LeaderSelectionAt)
		}
	}
	return tr.Draft, nil
}

// LeaveQueue removes a player from the queue. It is a no-op once the queue has filled
func (a *API) LeaveQueue(ctx context.Context, playerID string) (store.Draft, error) {
	_, tr, err := a.mutateDraft(ctx, func(d store.Draft) (logic.Transition, error) {
		return logic.LeaveQueue(d, playerID)
	})
	if err != nil {
		return store.Draft{}, err
	}
	if tr.Changed {
		a.logger.Info("player left queue", zap.String("player", playerID))
	}
	return tr.Draft, nil
}

// SelectLeaders draws the two team leaders once the leader selection deadline has passed. Concurrent callers are
// safe, only the first one to commit changes the draft
// Preconditions: Receives context
// Postconditions: Returns the resulting draft, logic.ErrTooEarly before the deadline, or a store error
func (a *API) SelectLeaders(ctx context.Context) (store.Draft, error) {
	now := a.now()
	_, tr, err := a.mutateDraft(ctx, func(d store.Draft) (logic.Transition, error) {
		return logic.SelectLeaders(d, a.Rules, a.Rand, now)
	})
	if err != nil {
		return store.Draft{}, err
	}
	if tr.Changed {
		a.logger.Info("leaders selected",
			zap.String("team1", tr.Draft.Team1.Leader()),
			zap.String("team2", tr.Draft.Team2.Leader()))
	}
	return tr.Draft, nil
}

// PickPlayer lets the leader whose turn it is add an unassigned player to their team
func (a *API) PickPlayer(ctx context.Context, requesterID string, pickedID string) (store.Draft, error) {
	_, tr, err := a.mutateDraft(ctx, func(d store.Draft) (logic.Transition, error) {
		return logic.PickPlayer(d, a.Rules, requesterID, pickedID)
	})
	if err != nil {
		return store.Draft{}, err
	}
	a.logger.Info("player picked",
		zap.String("leader", requesterID),
		zap.String("player", pickedID),
		zap.String("state", string(tr.Draft.State)))
	return tr.Draft, nil
}

// BanMap lets the leader whose turn it is remove a map from the pool
func (a *API) BanMap(ctx context.Context, requesterID string, mapName string) (store.Draft, error) {
	_, tr, err := a.mutateDraft(ctx, func(d store.Draft) (logic.Transition, error) {
		return logic.BanMap(d, requesterID, mapName)
	})
	if err != nil {
		return store.Draft{}, err
	}
	a.logger.Info("map banned", zap.String("leader", requesterID), zap.String("map", mapName))
	if tr.Draft.Map != "" {
		a.logger.Info("map decided", zap.String("map", tr.Draft.Map))
	}
	return tr.Draft, nil
}

// RequestFinalize records a leader's confirmation that the match is over. The second leader's confirmation resets
// the draft and the published match together
// Preconditions: Receives context and the requesting player id
// Postconditions: Returns the resulting draft and whether this call performed the reset, or an error
func (a *API) RequestFinalize(ctx context.Context, requesterID string) (store.Draft, bool, error) {
	_, tr, err := a.mutateDraft(ctx, func(d store.Draft) (logic.Transition, error) {
		return logic.RequestFinalize(d, requesterID)
	})
	if err != nil {
		return store.Draft{}, false, err
	}
	if tr.Reset {
		a.logger.Info("match finalized, draft reset", zap.String("leader", requesterID))
	} else if tr.Changed {
		a.logger.Info("finalize confirmed", zap.String("leader", requesterID))
	}
	return tr.Draft, tr.Reset, nil
}

// Cancel resets the draft and the published match regardless of state, then tells the game server to restart.
// The reset is committed even if the restart command fails
// Preconditions: Receives context
// Postconditions: Returns nil, ErrRestartFailed if only the restart command failed, or an error if the reset failed
func (a *API) Cancel(ctx context.Context) error {
	err := a.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SetDraft(ctx, store.NewDraft()); err != nil {
			return err
		}
		return tx.SetMatch(ctx, store.NewMatch())
	})
	if err != nil {
		return fmt.Errorf("failed to reset draft: %w", err)
	}
	a.logger.Warn("match cancelled, draft reset")

	if a.Commands == nil || a.Config.ServerID == "" || a.Config.CancelCommand == "" {
		return nil
	}
	cmdCtx, cancel := context.WithTimeout(ctx, a.Config.CommandTimeout)
	defer cancel()
	if err := a.Commands.SendCommand(cmdCtx, a.Config.ServerID, a.Config.CancelCommand); err != nil {
		a.logger.Error("cancel command failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrRestartFailed, err)
	}
	return nil
}
