/* transitions.go
 * Contains the draft state machine. Every function is pure: it receives the current draft and returns the next one,
 * the caller is responsible for running it inside a store transaction and writing the result
 * Authors: Zachary Bower
 */

package logic

import (
	"inhouse-bot/api/store"
	"slices"
	"time"
)

// Transition is the outcome of applying an operation to a draft.
// Changed is false when the operation was an idempotent no-op and nothing should be written.
// Reset is true when the draft and the published match must both be reset in the same commit
type Transition struct {
	Draft   store.Draft
	Changed bool
	Reset   bool
}

func unchanged(d store.Draft) Transition {
	return Transition{Draft: d}
}

func changed(d store.Draft) Transition {
	return Transition{Draft: d, Changed: true}
}

// JoinQueue adds a player to the queue. Joining twice is a no-op. When the queue fills the draft moves to
// SELECTING_LEADERS with a leader selection deadline of now plus the configured delay
// Preconditions: Receives the draft, rules, the joining player id and the current time
// Postconditions: Returns the transition, or ErrInvalidPlayer, ErrCapacityExceeded or ErrWrongState
func JoinQueue(d store.Draft, rules Rules, playerID string, now time.Time) (Transition, error) {
	if playerID == "" {
		return Transition{}, ErrInvalidPlayer
	}
	if slices.Contains(d.Queue, playerID) {
		return unchanged(d), nil
	}
	if len(d.Queue) >= rules.QueueSize {
		return Transition{}, ErrCapacityExceeded
	}
	if d.State != store.StateAwaitingPlayers {
		return Transition{}, ErrWrongState
	}

	next := d.Clone()
	next.Queue = append(next.Queue, playerID)

	// Queue is full, seed the leader selection phase
	if len(next.Queue) == rules.QueueSize {
		deadline := now.Add(rules.LeaderSelectionDelay)
		next.State = store.StateSelectingLeaders
		next.LeaderSelectionAt = &deadline
		next.Team1 = store.Team{DisplayName: "Team 1", Players: []string{}}
		next.Team2 = store.Team{DisplayName: "Team 2", Players: []string{}}
		next.Unassigned = []string{}
		next.Turn = store.Team1
	}
	return changed(next), nil
}

// LeaveQueue removes a player from the queue. Leaving is only supported while players are still being gathered,
// in every other state and for players not in the queue it is a no-op
func LeaveQueue(d store.Draft, playerID string) (Transition, error) {
	if playerID == "" {
		return Transition{}, ErrInvalidPlayer
	}
	if d.State != store.StateAwaitingPlayers {
		return unchanged(d), nil
	}
	idx := slices.Index(d.Queue, playerID)
	if idx < 0 {
		return unchanged(d), nil
	}
	next := d.Clone()
	next.Queue = slices.Delete(next.Queue, idx, idx+1)
	return changed(next), nil
}

// SelectLeaders draws two distinct leaders from the full queue and starts the team draft. It is a no-op unless the
// draft is in SELECTING_LEADERS with a full queue and no leaders, which makes concurrent triggers safe
// Preconditions: Receives the draft, rules, the random source and the current time
// Postconditions: Returns the transition, or ErrTooEarly if the leader selection deadline has not passed
func SelectLeaders(d store.Draft, rules Rules, rng RandomSource, now time.Time) (Transition, error) {
	if d.State != store.StateSelectingLeaders ||
		len(d.Queue) != rules.QueueSize ||
		len(d.Team1.Players) != 0 ||
		len(d.Team2.Players) != 0 {
		return unchanged(d), nil
	}
	if d.LeaderSelectionAt != nil && now.Before(*d.LeaderSelectionAt) {
		return Transition{}, ErrTooEarly
	}

	// Draw without replacement: the second index skips over the first
	i := rng.IntN(len(d.Queue))
	j := rng.IntN(len(d.Queue) - 1)
	if j >= i {
		j++
	}

	next := d.Clone()
	next.Team1.Players = []string{d.Queue[i]}
	next.Team2.Players = []string{d.Queue[j]}
	next.Unassigned = make([]string, 0, len(d.Queue)-2)
	for k, p := range d.Queue {
		if k != i && k != j {
			next.Unassigned = append(next.Unassigned, p)
		}
	}
	next.State = store.StateDraftingTeams
	next.Turn = store.Team1
	next.LeaderSelectionAt = nil
	return changed(next), nil
}

// PickPlayer moves an unassigned player onto the team whose turn it is. Turns alternate after every pick and once
// both teams are full the draft moves to BANNING_MAP with a fresh map veto
// Preconditions: Receives the draft, rules, the id of the leader making the pick and the picked player id
// Postconditions: Returns the transition, or one of ErrWrongState, ErrInvalidPlayer, ErrNotYourTurn,
// ErrAlreadyAssigned, ErrNotAvailable or ErrTeamFull
func PickPlayer(d store.Draft, rules Rules, requesterID string, pickedID string) (Transition, error) {
	if d.State != store.StateDraftingTeams {
		return Transition{}, ErrWrongState
	}
	if pickedID == "" {
		return Transition{}, ErrInvalidPlayer
	}
	active := d.TeamFor(d.Turn)
	if requesterID == "" || requesterID != active.Leader() {
		return Transition{}, ErrNotYourTurn
	}
	if slices.Contains(d.Team1.Players, pickedID) || slices.Contains(d.Team2.Players, pickedID) {
		return Transition{}, ErrAlreadyAssigned
	}
	idx := slices.Index(d.Unassigned, pickedID)
	if idx < 0 {
		return Transition{}, ErrNotAvailable
	}
	if len(active.Players) >= rules.TeamSize {
		return Transition{}, ErrTeamFull
	}

	next := d.Clone()
	next.Unassigned = slices.Delete(next.Unassigned, idx, idx+1)
	if d.Turn == store.Team1 {
		next.Team1.Players = append(next.Team1.Players, pickedID)
	} else {
		next.Team2.Players = append(next.Team2.Players, pickedID)
	}
	next.Turn = d.Turn.Other()

	if len(next.Team1.Players) == rules.TeamSize && len(next.Team2.Players) == rules.TeamSize {
		next.State = store.StateBanningMap
		next.Queue = []string{}
		next.Unassigned = []string{}
		next.MapTurn = BanTurn(0)
		next.BannedMaps = []string{}
		next.MapBanCount = 0
		next.MapPool = append([]string{}, rules.MapPool...)
		next.Map = remainingMap(next.MapPool, next.BannedMaps)
	}
	return changed(next), nil
}

// BanMap removes a map from the veto. When exactly one map remains it becomes the match map; publication is a
// separate step so the state stays BANNING_MAP
// Preconditions: Receives the draft, the id of the leader banning and the map name from the pool
// Postconditions: Returns the transition, or one of ErrWrongState, ErrWrongTurn or ErrInvalidMap
func BanMap(d store.Draft, requesterID string, mapName string) (Transition, error) {
	if d.State != store.StateBanningMap || d.Map != "" {
		return Transition{}, ErrWrongState
	}
	turn := BanTurn(d.MapBanCount)
	if requesterID == "" || requesterID != d.TeamFor(turn).Leader() {
		return Transition{}, ErrWrongTurn
	}
	if !slices.Contains(d.MapPool, mapName) || slices.Contains(d.BannedMaps, mapName) {
		return Transition{}, ErrInvalidMap
	}

	next := d.Clone()
	next.BannedMaps = append(next.BannedMaps, mapName)
	next.MapBanCount++
	next.MapTurn = BanTurn(next.MapBanCount)
	next.Map = remainingMap(next.MapPool, next.BannedMaps)
	return changed(next), nil
}

// RequestFinalize records a leader's confirmation that the match is over. Once both leaders have confirmed the
// transition asks for a full reset. Outside LIVE it is a no-op so late confirmations cannot touch the next cycle
// Preconditions: Receives the draft and the id of the requesting player
// Postconditions: Returns the transition, or ErrUnauthorized if the requester is not a leader
func RequestFinalize(d store.Draft, requesterID string) (Transition, error) {
	if d.State != store.StateLive {
		return unchanged(d), nil
	}
	leader1, leader2 := d.Team1.Leader(), d.Team2.Leader()
	if requesterID == "" || (requesterID != leader1 && requesterID != leader2) {
		return Transition{}, ErrUnauthorized
	}
	if slices.Contains(d.FinalizeBy, requesterID) {
		return unchanged(d), nil
	}

	next := d.Clone()
	next.FinalizeBy = append(next.FinalizeBy, requesterID)
	if slices.Contains(next.FinalizeBy, leader1) && slices.Contains(next.FinalizeBy, leader2) {
		return Transition{Draft: store.NewDraft(), Changed: true, Reset: true}, nil
	}
	return changed(next), nil
}

// RemainingMaps returns the maps in the pool that have not been banned, in pool order
func RemainingMaps(pool []string, banned []string) []string {
	remaining := make([]string, 0, len(pool))
	for _, m := range pool {
		if !slices.Contains(banned, m) {
			remaining = append(remaining, m)
		}
	}
	return remaining
}

// Helper that returns the decided map, or an empty string while more than one map remains
func remainingMap(pool []string, banned []string) string {
	remaining := RemainingMaps(pool, banned)
	if len(remaining) == 1 {
		return remaining[0]
	}
	return ""
}
