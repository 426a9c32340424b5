/* matchzy.go
 * Contains the builders for the match plugin's json config and console commands
 * Authors: Zachary Bower
 */

package external

import (
	"fmt"
	"inhouse-bot/api/store"
	"strings"
)

// BuildMatchConfig converts a published match into the plugin's config shape
// Preconditions: Receives the match, a player id: display name map covering both rosters and the match id
// Postconditions: Returns the config, or a *MissingPlayersError if a rostered player has no name
func BuildMatchConfig(m store.Match, names map[string]string, matchID string) (MatchConfig, error) {
	team1, missing1 := buildTeam(m.Team1, names)
	team2, missing2 := buildTeam(m.Team2, names)
	if missing := append(missing1, missing2...); len(missing) > 0 {
		return MatchConfig{}, &MissingPlayersError{PlayerIDs: missing}
	}

	return MatchConfig{
		MatchID: matchID,
		NumMaps: 1,
		MapList: []string{m.Map},
		Team1:   team1,
		Team2:   team2,
	}, nil
}

// Helper that builds one side of the config. Teams are named after their leader when the roster has one
func buildTeam(team store.Team, names map[string]string) (MatchConfigTeam, []string) {
	var missing []string
	players := make(map[string]string, len(team.Players))
	for _, id := range team.Players {
		name, ok := names[id]
		if !ok || name == "" {
			missing = append(missing, id)
			continue
		}
		players[id] = name
	}

	teamName := team.DisplayName
	if leader := team.Leader(); leader != "" && names[leader] != "" {
		teamName = fmt.Sprintf("team_%s", names[leader])
	}
	return MatchConfigTeam{Name: teamName, Players: players}, missing
}

// RosterIDs returns every player id on both teams of a match
func RosterIDs(m store.Match) []string {
	ids := make([]string, 0, len(m.Team1.Players)+len(m.Team2.Players))
	ids = append(ids, m.Team1.Players...)
	ids = append(ids, m.Team2.Players...)
	return ids
}

// LoadMatchCommand is the console line that makes the plugin fetch and start a match config
func LoadMatchCommand(configURL string) string {
	return fmt.Sprintf("matchzy_loadmatch_url %q", configURL)
}

// MatchConfigURL builds the url the game server fetches the config from. The version query keeps the server from
// reusing a cached config of an earlier match
func MatchConfigURL(publicBaseURL string, m store.Match) string {
	base := strings.TrimRight(publicBaseURL, "/") + "/api/match-config"
	if m.PublishedAt == nil {
		return base
	}
	return fmt.Sprintf("%s?v=%d", base, m.PublishedAt.Unix())
}
