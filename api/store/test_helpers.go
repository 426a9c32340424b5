/* test_helpers.go
 * Contains helpers for building store fixtures in tests of this and dependent packages
 * Authors: Zachary Bower
 */

package store

import (
	"context"
	"fmt"
	"time"
)

// NewSeededMemoryStore creates a MemoryStore holding the given documents. Either may be nil
func NewSeededMemoryStore(d *Draft, m *Match) *MemoryStore {
	s := NewMemoryStore()
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		if d != nil {
			if err := tx.SetDraft(ctx, *d); err != nil {
				return err
			}
		}
		if m != nil {
			if err := tx.SetMatch(ctx, *m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		panic(fmt.Sprintf("seeding memory store: %v", err))
	}
	return s
}

// SamplePlayers returns n distinct player ids p1..pn
func SamplePlayers(n int) []string {
	players := make([]string, n)
	for i := range players {
		players[i] = fmt.Sprintf("p%d", i+1)
	}
	return players
}

// SampleDraftingDraft returns a draft with p1 and p2 as leaders, p3 to p10 unassigned and team 1 to pick
func SampleDraftingDraft(mapPool []string) Draft {
	players := SamplePlayers(10)
	d := NewDraft()
	d.State = StateDraftingTeams
	d.Queue = append([]string{}, players...)
	d.Team1.Players = []string{players[0]}
	d.Team2.Players = []string{players[1]}
	d.Unassigned = append([]string{}, players[2:]...)
	d.Turn = Team1
	d.MapPool = append([]string{}, mapPool...)
	return d
}

// SampleBanningDraft returns a draft with both teams drafted and the map veto about to begin
func SampleBanningDraft(mapPool []string) Draft {
	players := SamplePlayers(10)
	d := NewDraft()
	d.State = StateBanningMap
	d.Team1.Players = append([]string{}, players[0], players[2], players[4], players[6], players[8])
	d.Team2.Players = append([]string{}, players[1], players[3], players[5], players[7], players[9])
	d.MapPool = append([]string{}, mapPool...)
	return d
}

// SampleLiveDraft returns a draft that has finished the map veto on mapName
func SampleLiveDraft(mapPool []string, mapName string) Draft {
	d := SampleBanningDraft(mapPool)
	d.State = StateLive
	for _, m := range mapPool {
		if m != mapName {
			d.BannedMaps = append(d.BannedMaps, m)
		}
	}
	d.MapBanCount = len(d.BannedMaps)
	d.Map = mapName
	return d
}

// SamplePublishedMatch returns the match a successful publication of SampleLiveDraft would produce
func SamplePublishedMatch(mapPool []string, mapName string, publishedAt time.Time) Match {
	d := SampleLiveDraft(mapPool, mapName)
	m := NewMatch()
	m.State = StateBanningMap
	m.Team1 = d.Team1.clone()
	m.Team2 = d.Team2.clone()
	m.Map = d.Map
	m.MapPool = cloneStrings(d.MapPool)
	m.BannedMaps = cloneStrings(d.BannedMaps)
	m.PublishedAt = &publishedAt
	return m
}
