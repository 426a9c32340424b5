/* models.go
 * This file contains the documents stored in the db: the match draft, the published (current) match and player links
 * Authors: Zachary Bower
 */

package store

import (
	"slices"
	"time"
)

// DraftState is the lifecycle state shared by the draft and the published match
type DraftState string

const (
	StateAwaitingPlayers  DraftState = "AWAITING_PLAYERS"
	StateSelectingLeaders DraftState = "SELECTING_LEADERS"
	StateDraftingTeams    DraftState = "DRAFTING_TEAMS"
	StateBanningMap       DraftState = "BANNING_MAP"
	StateLive             DraftState = "LIVE"
)

// TeamSide identifies one of the two teams
type TeamSide string

const (
	Team1 TeamSide = "team1"
	Team2 TeamSide = "team2"
)

// Other returns the opposing side
func (t TeamSide) Other() TeamSide {
	if t == Team1 {
		return Team2
	}
	return Team1
}

// Start error reasons recorded on the match when a server start fails
const (
	ReasonUnauthenticated = "UNAUTHENTICATED"
	ReasonFailed          = "FAILED"
)

// Team is a roster. The first player is the team leader
type Team struct {
	DisplayName string   `bson:"displayName" json:"displayName"`
	Players     []string `bson:"players" json:"players"`
}

// Leader returns the team leader's player id or an empty string if the team has no players yet
func (t Team) Leader() string {
	if len(t.Players) == 0 {
		return ""
	}
	return t.Players[0]
}

// Draft is the single mutable match-assembly document (queue -> teams -> map veto)
type Draft struct {
	ID      string `bson:"_id,omitempty" json:"-"`
	Version int64  `bson:"version" json:"version"`

	State      DraftState `bson:"state" json:"state"`
	Queue      []string   `bson:"queue" json:"queue"`
	Team1      Team       `bson:"team1" json:"team1"`
	Team2      Team       `bson:"team2" json:"team2"`
	Unassigned []string   `bson:"unassigned" json:"unassigned"`
	Turn       TeamSide   `bson:"turn" json:"turn"`

	MapPool     []string `bson:"mapPool" json:"mapPool"`
	BannedMaps  []string `bson:"bannedMaps" json:"bannedMaps"`
	MapBanCount int      `bson:"mapBanCount" json:"mapBanCount"`
	MapTurn     TeamSide `bson:"mapTurn" json:"mapTurn"`
	Map         string   `bson:"map,omitempty" json:"map,omitempty"`

	FinalizeBy        []string   `bson:"finalizeBy" json:"finalizeBy"`
	LeaderSelectionAt *time.Time `bson:"leaderSelectionAt,omitempty" json:"leaderSelectionAt,omitempty"`

	PublishInProgress bool       `bson:"publishInProgress" json:"publishInProgress"`
	PublishLockedAt   *time.Time `bson:"publishLockedAt,omitempty" json:"publishLockedAt,omitempty"`
	PublishLockToken  string     `bson:"publishLockToken,omitempty" json:"-"`
	PublishedAt       *time.Time `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	PublishError      string     `bson:"publishError,omitempty" json:"publishError,omitempty"`

	// Mirrored from the published match
	StartInProgress bool   `bson:"startInProgress" json:"startInProgress"`
	StartError      string `bson:"startError,omitempty" json:"startError,omitempty"`

	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// NewDraft returns the initial draft shape
func NewDraft() Draft {
	return Draft{
		State:      StateAwaitingPlayers,
		Queue:      []string{},
		Team1:      Team{DisplayName: "Team 1", Players: []string{}},
		Team2:      Team{DisplayName: "Team 2", Players: []string{}},
		Unassigned: []string{},
		Turn:       Team1,
		MapPool:    []string{},
		BannedMaps: []string{},
		MapTurn:    Team1,
		FinalizeBy: []string{},
	}
}

// TeamFor returns the roster for a side
func (d Draft) TeamFor(side TeamSide) Team {
	if side == Team2 {
		return d.Team2
	}
	return d.Team1
}

// Clone returns a deep copy so transitions never alias slices of the stored document
func (d Draft) Clone() Draft {
	c := d
	c.Queue = cloneStrings(d.Queue)
	c.Team1 = d.Team1.clone()
	c.Team2 = d.Team2.clone()
	c.Unassigned = cloneStrings(d.Unassigned)
	c.MapPool = cloneStrings(d.MapPool)
	c.BannedMaps = cloneStrings(d.BannedMaps)
	c.FinalizeBy = cloneStrings(d.FinalizeBy)
	c.LeaderSelectionAt = cloneTime(d.LeaderSelectionAt)
	c.PublishLockedAt = cloneTime(d.PublishLockedAt)
	c.PublishedAt = cloneTime(d.PublishedAt)
	return c
}

// Match is the published, read-mostly projection of a completed draft plus server lifecycle metadata
type Match struct {
	ID      string `bson:"_id,omitempty" json:"-"`
	Version int64  `bson:"version" json:"version"`

	State      DraftState `bson:"state" json:"state"`
	Queue      []string   `bson:"queue" json:"queue"`
	Team1      Team       `bson:"team1" json:"team1"`
	Team2      Team       `bson:"team2" json:"team2"`
	Map        string     `bson:"map,omitempty" json:"map,omitempty"`
	MapPool    []string   `bson:"mapPool" json:"mapPool"`
	BannedMaps []string   `bson:"bannedMaps" json:"bannedMaps"`

	PublishedAt *time.Time `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`

	StartInProgress  bool       `bson:"startInProgress" json:"startInProgress"`
	StartLockedAt    *time.Time `bson:"startLockedAt,omitempty" json:"startLockedAt,omitempty"`
	StartLockToken   string     `bson:"startLockToken,omitempty" json:"-"`
	StartError       string     `bson:"startError,omitempty" json:"startError,omitempty"`
	StartErrorReason string     `bson:"startErrorReason,omitempty" json:"startErrorReason,omitempty"`
	StartedAt        *time.Time `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	MatchConfigURL   string     `bson:"matchConfigUrl,omitempty" json:"matchConfigUrl,omitempty"`

	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// NewMatch returns the initial (reset) match shape
func NewMatch() Match {
	return Match{
		State:      StateAwaitingPlayers,
		Queue:      []string{},
		Team1:      Team{DisplayName: "Team 1", Players: []string{}},
		Team2:      Team{DisplayName: "Team 2", Players: []string{}},
		MapPool:    []string{},
		BannedMaps: []string{},
	}
}

// Clone returns a deep copy of the match
func (m Match) Clone() Match {
	c := m
	c.Queue = cloneStrings(m.Queue)
	c.Team1 = m.Team1.clone()
	c.Team2 = m.Team2.clone()
	c.MapPool = cloneStrings(m.MapPool)
	c.BannedMaps = cloneStrings(m.BannedMaps)
	c.PublishedAt = cloneTime(m.PublishedAt)
	c.StartLockedAt = cloneTime(m.StartLockedAt)
	c.StartedAt = cloneTime(m.StartedAt)
	return c
}

// PlayerLink maps a chat account (discord user id) to a player id (steam id)
type PlayerLink struct {
	ChatID   string `bson:"chatid"`
	PlayerID string `bson:"playerid"`
}

// Change is a single committed write to a document. Before is nil for the initial delivery and for inserts
type Change[T any] struct {
	Before *T
	After  *T
}

func (t Team) clone() Team {
	return Team{DisplayName: t.DisplayName, Players: cloneStrings(t.Players)}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
