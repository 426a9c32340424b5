/* start.go
 * This file contains the server start coordinator and the match config served to the game server. A start claims the
 * lock on the published match in one transaction, sends the load command outside of it, and records the outcome in a
 * second transaction. The start fields are mirrored onto the draft so draft subscribers can show progress
 * Authors: Zachary Bower
 */

package api

import (
	"context"
	"errors"
	"fmt"
	"inhouse-bot/api/external"
	"inhouse-bot/api/logic"
	"inhouse-bot/api/store"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// StartMatchIfReady sends the load match command for a published match at most once at a time
// Preconditions: Receives context
// Postconditions: Returns the tagged outcome. Only STARTED changes the match state, every other outcome leaves the
// start lock free
func (a *API) StartMatchIfReady(ctx context.Context) StartResult {
	now := a.now()
	var token string
	var status StartStatus

	// Claim
	err := a.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		status = ""
		m, found, err := tx.GetMatch(ctx)
		if err != nil {
			return err
		}
		if !found {
			status = StartNotFound
			return nil
		}
		if m.State == store.StateLive {
			status = StartLocked
			return nil
		}
		t, ok := logic.ClaimLock(m.StartInProgress, m.StartLockedAt, now, a.Config.LockTTL)
		if !ok {
			status = StartLocked
			return nil
		}
		if !a.Rules.MatchReady(m) {
			status = StartNotReady
			return nil
		}

		m.StartInProgress = true
		m.StartLockedAt = &now
		m.StartLockToken = t
		m.StartError = ""
		m.StartErrorReason = ""
		if err := tx.SetMatch(ctx, m); err != nil {
			return err
		}
		token = t
		return mirrorStart(ctx, tx, true, "")
	})
	if err != nil {
		a.logger.Error("start claim failed", zap.Error(err))
		return StartResult{Status: StartFailed, Err: fmt.Errorf("failed to claim start lock: %w", err)}
	}
	if status != "" {
		return StartResult{Status: status}
	}

	// Re-check now that we hold the lock
	m, found, err := a.Store.GetMatch(ctx)
	if err != nil {
		return a.failStart(ctx, token, StartFailed, fmt.Errorf("failed to re-read match: %w", err))
	}
	if !found || m.StartLockToken != token || !a.Rules.MatchReady(m) {
		a.releaseStart(ctx, token)
		return StartResult{Status: StartNotReady}
	}

	// Every rostered player needs a name before the game server can load the config
	if a.Roster != nil {
		if _, err := a.Roster.ResolveNames(ctx, external.RosterIDs(m)); err != nil {
			if external.IsMissingPlayers(err) {
				a.logger.Warn("roster not resolvable yet", zap.Error(err))
				a.releaseStart(ctx, token)
				return StartResult{Status: StartNotReady}
			}
			return a.failStart(ctx, token, StartFailed, fmt.Errorf("failed to resolve roster: %w", err))
		}
	}

	if a.Commands == nil {
		return a.failStart(ctx, token, StartFailed, fmt.Errorf("no command sender configured"))
	}
	configURL := external.MatchConfigURL(a.Config.PublicBaseURL, m)
	cmdCtx, cancel := context.WithTimeout(ctx, a.Config.CommandTimeout)
	err = a.Commands.SendCommand(cmdCtx, a.Config.ServerID, external.LoadMatchCommand(configURL))
	cancel()
	if err != nil {
		if external.IsUnauthenticated(err) {
			return a.failStart(ctx, token, StartUnauthenticated, fmt.Errorf("command api rejected credentials: %w", err))
		}
		return a.failStart(ctx, token, StartFailed, fmt.Errorf("load match command failed: %w", err))
	}

	// Record success
	startedAt := a.now()
	err = a.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		m, found, err := tx.GetMatch(ctx)
		if err != nil {
			return err
		}
		if !found || m.StartLockToken != token {
			return errLockLost
		}
		m.State = store.StateLive
		m.MatchConfigURL = configURL
		m.StartedAt = &startedAt
		m.StartInProgress = false
		m.StartLockedAt = nil
		m.StartLockToken = ""
		if err := tx.SetMatch(ctx, m); err != nil {
			return err
		}
		return mirrorStart(ctx, tx, false, "")
	})
	if err != nil {
		// The command went out so the server is loading the match, only the bookkeeping failed
		a.logger.Error("match started but the result could not be recorded", zap.Error(err))
		return StartResult{Status: StartFailed, ConfigURL: configURL, Err: fmt.Errorf("failed to record start: %w", err)}
	}

	a.logger.Info("match started", zap.String("configUrl", configURL))
	return StartResult{Status: StartStarted, ConfigURL: configURL}
}

// MatchConfig builds the json config for the published match with every player's display name
// Preconditions: Receives context
// Postconditions: Returns the config, ErrNotReady if there is no complete published match or a name is missing, or
// an error if the lookup failed
func (a *API) MatchConfig(ctx context.Context) (external.MatchConfig, error) {
	m, found, err := a.Store.GetMatch(ctx)
	if err != nil {
		return external.MatchConfig{}, err
	}
	if !found || m.Map == "" ||
		len(m.Team1.Players) != a.Rules.TeamSize ||
		len(m.Team2.Players) != a.Rules.TeamSize {
		return external.MatchConfig{}, ErrNotReady
	}

	names, err := a.ResolveRoster(ctx, external.RosterIDs(m))
	if err != nil {
		if external.IsMissingPlayers(err) {
			return external.MatchConfig{}, fmt.Errorf("%w: %v", ErrNotReady, err)
		}
		return external.MatchConfig{}, err
	}

	var matchID string
	if m.PublishedAt != nil {
		matchID = strconv.FormatInt(m.PublishedAt.Unix(), 10)
	}
	cfg, err := external.BuildMatchConfig(m, names, matchID)
	if err != nil {
		return external.MatchConfig{}, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	return cfg, nil
}

// Helper that frees the start lock without recording an error
func (a *API) releaseStart(ctx context.Context, token string) {
	a.finishStart(ctx, token, "", "")
}

// Helper that frees the start lock and records the failure on the match and the draft
func (a *API) failStart(ctx context.Context, token string, status StartStatus, cause error) StartResult {
	a.logger.Error("match start failed", zap.String("reason", string(status)), zap.Error(cause))

	reason := store.ReasonFailed
	if status == StartUnauthenticated {
		reason = store.ReasonUnauthenticated
	}
	a.finishStart(ctx, token, reason, cause.Error())
	return StartResult{Status: status, Err: cause}
}

func (a *API) finishStart(ctx context.Context, token string, reason string, message string) {
	// The caller's context may be the reason we are releasing
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	err := a.Store.RunTransaction(releaseCtx, func(ctx context.Context, tx store.Tx) error {
		m, found, err := tx.GetMatch(ctx)
		if err != nil {
			return err
		}
		if !found || m.StartLockToken != token {
			return nil
		}
		m.StartInProgress = false
		m.StartLockedAt = nil
		m.StartLockToken = ""
		m.StartError = message
		m.StartErrorReason = reason
		if err := tx.SetMatch(ctx, m); err != nil {
			return err
		}
		return mirrorStart(ctx, tx, false, message)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("failed to release start lock, it will expire after the lock ttl", zap.Error(err))
	}
}

// Helper that copies the start lock and error onto the draft inside the same transaction
func mirrorStart(ctx context.Context, tx store.Tx, inProgress bool, startError string) error {
	d, found, err := tx.GetDraft(ctx)
	if err != nil || !found {
		return err
	}
	d.StartInProgress = inProgress
	d.StartError = startError
	return tx.SetDraft(ctx, d)
}
