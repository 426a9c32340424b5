/* models.go
 * This file contains the interfaces and models used by the external package when talking to the game server host,
 * the Steam web api and the game server's match plugin
 * Authors: Zachary Bower
 */

package external

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// CommandSender sends a console command to a game server
type CommandSender interface {
	SendCommand(ctx context.Context, serverID string, command string) error
}

// RosterResolver maps player ids to display names. Every id that cannot be resolved is reported in a
// *MissingPlayersError
type RosterResolver interface {
	ResolveNames(ctx context.Context, playerIDs []string) (map[string]string, error)
}

// CommandError is returned when the command api answers with a non 2xx status
type CommandError struct {
	StatusCode int
	Body       string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command api returned status %d: %s", e.StatusCode, e.Body)
}

// IsUnauthenticated reports whether err is a rejected credential from the command api
func IsUnauthenticated(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	return cmdErr.StatusCode == http.StatusUnauthorized || cmdErr.StatusCode == http.StatusForbidden
}

// MissingPlayersError lists the player ids a roster lookup could not resolve
type MissingPlayersError struct {
	PlayerIDs []string
}

func (e *MissingPlayersError) Error() string {
	return fmt.Sprintf("could not resolve players: %s", strings.Join(e.PlayerIDs, ", "))
}

// IsMissingPlayers reports whether err is a *MissingPlayersError
func IsMissingPlayers(err error) bool {
	var missing *MissingPlayersError
	return errors.As(err, &missing)
}

// MatchConfig is the match description served to the game server's match plugin
type MatchConfig struct {
	MatchID string          `json:"matchid"`
	NumMaps int             `json:"num_maps"`
	MapList []string        `json:"maplist"`
	Team1   MatchConfigTeam `json:"team1"`
	Team2   MatchConfigTeam `json:"team2"`
}

// MatchConfigTeam is one side of a MatchConfig. Players maps player id to display name
type MatchConfigTeam struct {
	Name    string            `json:"name"`
	Players map[string]string `json:"players"`
}

// Struct for the relevant part of a GetPlayerSummaries response
type playerSummariesResponse struct {
	Response struct {
		Players []struct {
			SteamID     string `json:"steamid"`
			PersonaName string `json:"personaname"`
		} `json:"players"`
	} `json:"response"`
}
