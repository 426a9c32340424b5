/* rules.go
 * Contains the fixed parameters of a match draft and the random source used for leader selection
 * Authors: Zachary Bower
 */

package logic

import (
	"inhouse-bot/api/store"
	"time"
)

// DefaultMapPool is the CS2 active duty pool
var DefaultMapPool = []string{
	"de_ancient",
	"de_anubis",
	"de_dust2",
	"de_inferno",
	"de_mirage",
	"de_nuke",
	"de_train",
}

const (
	DefaultQueueSize            = 10
	DefaultTeamSize             = 5
	DefaultLeaderSelectionDelay = 5 * time.Second
)

// Rules holds the parameters the transitions are evaluated against
type Rules struct {
	QueueSize            int
	TeamSize             int
	LeaderSelectionDelay time.Duration
	MapPool              []string
}

// DefaultRules returns the standard 5v5 rules with the active duty pool
func DefaultRules() Rules {
	return Rules{
		QueueSize:            DefaultQueueSize,
		TeamSize:             DefaultTeamSize,
		LeaderSelectionDelay: DefaultLeaderSelectionDelay,
		MapPool:              append([]string{}, DefaultMapPool...),
	}
}

// RandomSource is the source of randomness for leader selection. *math/rand/v2.Rand satisfies it
type RandomSource interface {
	IntN(n int) int
}

// ReadyToPublish reports whether the draft has finished team selection and map veto. Lock fields are not considered
// so the predicate only changes when the draft itself does
func (r Rules) ReadyToPublish(d store.Draft) bool {
	return d.State == store.StateBanningMap &&
		d.Map != "" &&
		len(d.Team1.Players) == r.TeamSize &&
		len(d.Team2.Players) == r.TeamSize
}

// MatchReady reports whether a published match has everything needed to start the game server
func (r Rules) MatchReady(m store.Match) bool {
	return m.State == store.StateBanningMap &&
		m.Map != "" &&
		len(m.Team1.Players) == r.TeamSize &&
		len(m.Team2.Players) == r.TeamSize
}
