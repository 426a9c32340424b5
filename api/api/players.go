/* players.go
 * This file contains the methods that map chat accounts and player ids to players
 * Authors: Zachary Bower
 */

package api

import (
	"context"
	"errors"
	"fmt"
	"inhouse-bot/api/external"
	"inhouse-bot/api/shared"
	"inhouse-bot/api/store"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

var (
	// ErrNotLinked is returned when a chat account has no player id yet
	ErrNotLinked = errors.New("account is not linked to a player id")
	// ErrInvalidPlayerID is returned by LinkPlayer for ids that cannot be a player id
	ErrInvalidPlayerID = errors.New("player id must be a single word")
)

// LinkPlayer records which player id a chat user acts as
// Preconditions: Receives context, the chat user and the player id
// Postconditions: Stores the link, or returns ErrInvalidPlayerID or the store error
func (a *API) LinkPlayer(ctx context.Context, user shared.User, playerID string) error {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" || len(playerID) > 64 || strings.IndexFunc(playerID, unicode.IsSpace) >= 0 {
		return ErrInvalidPlayerID
	}
	if user.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if err := a.Store.LinkPlayer(ctx, user.UserID, playerID); err != nil {
		return err
	}
	a.logger.Info("linked player", zap.String("user", user.Username), zap.String("playerId", playerID))
	return nil
}

// PlayerFor returns the player id a chat user acts as
// Preconditions: Receives context and the chat user
// Postconditions: Returns the player id, ErrNotLinked, or the store error
func (a *API) PlayerFor(ctx context.Context, user shared.User) (string, error) {
	playerID, err := a.Store.LinkedPlayer(ctx, user.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNotLinked
	}
	return playerID, err
}

// Players returns the players for ids in the same order. Names that cannot be resolved fall back to the id so this
// is safe for display
func (a *API) Players(ctx context.Context, playerIDs []string) []shared.Player {
	names := map[string]string{}
	if len(playerIDs) > 0 && a.Roster != nil {
		resolved, err := a.Roster.ResolveNames(ctx, playerIDs)
		if err != nil && !external.IsMissingPlayers(err) {
			a.logger.Warn("failed to resolve player names", zap.Error(err))
		}
		if resolved != nil {
			names = resolved
		}
	}

	players := make([]shared.Player, 0, len(playerIDs))
	for _, id := range playerIDs {
		name := names[id]
		if name == "" {
			name = id
		}
		players = append(players, shared.Player{ID: id, DisplayName: name})
	}
	return players
}
