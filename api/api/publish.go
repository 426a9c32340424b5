/* publish.go
 * This file contains the publication pipeline that copies a finished draft into the published match. The work is
 * split in three transactions: claim the lock, write the match while the lock is still ours, then release the lock
 * and mark the draft LIVE. A match that an earlier attempt already published is kept as is. Any failure after the
 * claim releases the lock and records the error
 * Authors: Zachary Bower
 */

package api

import (
	"context"
	"errors"
	"fmt"
	"inhouse-bot/api/logic"
	"inhouse-bot/api/store"
	"time"

	"go.uber.org/zap"
)

var errLockLost = errors.New("lock was reclaimed by another caller")

// Publish promotes a finished draft to the published match exactly once
// Preconditions: Receives context
// Postconditions: Returns PUBLISHED on success, NOT_READY if the draft is not finished or already published, LOCKED if
// another caller holds the publish lock, or FAILED with the error
func (a *API) Publish(ctx context.Context) PublishResult {
	now := a.now()
	var claimed store.Draft
	var token string
	var status PublishStatus

	// Claim
	err := a.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		status = ""
		d, found, err := tx.GetDraft(ctx)
		if err != nil {
			return err
		}
		if !found || !a.Rules.ReadyToPublish(d) || d.PublishedAt != nil {
			status = PublishNotReady
			return nil
		}
		t, ok := logic.ClaimLock(d.PublishInProgress, d.PublishLockedAt, now, a.Config.LockTTL)
		if !ok {
			status = PublishLocked
			return nil
		}

		d.PublishInProgress = true
		d.PublishLockedAt = &now
		d.PublishLockToken = t
		d.PublishError = ""
		if err := tx.SetDraft(ctx, d); err != nil {
			return err
		}
		claimed, token = d, t
		return nil
	})
	if err != nil {
		a.logger.Error("publish claim failed", zap.Error(err))
		return PublishResult{Status: PublishFailed, Err: fmt.Errorf("failed to claim publish lock: %w", err)}
	}
	if status != "" {
		return PublishResult{Status: status}
	}

	// Write the match outside the claim transaction as a full replacement. The write only lands while we still hold
	// the lock, so a cancel or a reclaim in between leaves the match alone
	publishedAt := now
	match := logic.BuildPublishedMatch(claimed, now)
	adopted := false
	err = a.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		adopted, publishedAt = false, now
		d, found, err := tx.GetDraft(ctx)
		if err != nil {
			return err
		}
		if !found || d.PublishLockToken != token || !a.Rules.ReadyToPublish(d) {
			return errLockLost
		}
		current, found, err := tx.GetMatch(ctx)
		if err != nil {
			return err
		}
		if found && logic.IsPublicationOf(current, d) {
			adopted, publishedAt = true, *current.PublishedAt
			return nil
		}
		return tx.SetMatch(ctx, match)
	})
	if errors.Is(err, errLockLost) {
		a.logger.Warn("publish lock was lost before the match was written")
		return PublishResult{Status: PublishLocked}
	}
	if err != nil {
		return a.failPublish(ctx, token, fmt.Errorf("failed to write published match: %w", err))
	}
	if adopted {
		// An earlier attempt wrote the match but never marked the draft live
		a.logger.Info("match was already published, keeping it")
	}

	// Release
	err = a.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		d, found, err := tx.GetDraft(ctx)
		if err != nil {
			return err
		}
		if !found || d.PublishLockToken != token {
			return errLockLost
		}
		d.PublishInProgress = false
		d.PublishLockedAt = nil
		d.PublishLockToken = ""
		d.PublishError = ""
		d.PublishedAt = &publishedAt
		d.State = store.StateLive
		return tx.SetDraft(ctx, d)
	})
	if errors.Is(err, errLockLost) {
		a.logger.Warn("publish lock was reclaimed before release")
		return PublishResult{Status: PublishLocked}
	}
	if err != nil {
		return a.failPublish(ctx, token, fmt.Errorf("failed to mark draft live: %w", err))
	}

	a.logger.Info("match published", zap.String("map", match.Map), zap.Time("publishedAt", publishedAt))
	return PublishResult{Status: PublishPublished}
}

// Helper that releases a claimed publish lock and records why the publication failed
func (a *API) failPublish(ctx context.Context, token string, cause error) PublishResult {
	a.logger.Error("publish failed", zap.Error(cause))

	// The caller's context may be the reason we failed
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	err := a.Store.RunTransaction(releaseCtx, func(ctx context.Context, tx store.Tx) error {
		d, found, err := tx.GetDraft(ctx)
		if err != nil {
			return err
		}
		if !found || d.PublishLockToken != token {
			return nil
		}
		d.PublishInProgress = false
		d.PublishLockedAt = nil
		d.PublishLockToken = ""
		d.PublishError = cause.Error()
		return tx.SetDraft(ctx, d)
	})
	if err != nil {
		a.logger.Error("failed to release publish lock, it will expire after the lock ttl", zap.Error(err))
	}
	return PublishResult{Status: PublishFailed, Err: cause}
}
