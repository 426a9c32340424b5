/* publication_test.go
 * Contains unit tests for publication.go, rules.go and errors.go
 * Authors: Zachary Bower
 */

package logic

import (
	"fmt"
	"inhouse-bot/api/store"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPublishedMatch(t *testing.T) {
	d := store.SampleLiveDraft(DefaultMapPool, "de_mirage")
	d.State = store.StateBanningMap
	d.Queue = []string{"leftover"}
	d.FinalizeBy = []string{"p1"}

	m := BuildPublishedMatch(d, testNow)

	assert.Equal(t, store.StateBanningMap, m.State)
	assert.Empty(t, m.Queue)
	assert.Equal(t, d.Team1, m.Team1)
	assert.Equal(t, d.Team2, m.Team2)
	assert.Equal(t, "de_mirage", m.Map)
	assert.Equal(t, d.BannedMaps, m.BannedMaps)
	require.NotNil(t, m.PublishedAt)
	assert.Equal(t, testNow, *m.PublishedAt)
	assert.False(t, m.StartInProgress)
	assert.Empty(t, m.MatchConfigURL)
	assert.True(t, DefaultRules().MatchReady(m))

	// The match must not share slices with the draft
	m.Team1.Players[0] = "changed"
	assert.Equal(t, "p1", d.Team1.Players[0])
}

func TestIsPublicationOf(t *testing.T) {
	d := store.SampleLiveDraft(DefaultMapPool, "de_mirage")
	d.State = store.StateBanningMap
	m := BuildPublishedMatch(d, testNow)
	assert.True(t, IsPublicationOf(m, d))

	m.State = store.StateLive
	assert.True(t, IsPublicationOf(m, d), "server lifecycle fields are ignored")

	other := m
	other.Map = "de_nuke"
	assert.False(t, IsPublicationOf(other, d))

	other = m
	other.Team2.Players = []string{"p2", "p4", "p6", "p8", "x"}
	assert.False(t, IsPublicationOf(other, d))

	assert.False(t, IsPublicationOf(store.NewMatch(), d))
}

func TestReadyPredicates(t *testing.T) {
	rules := DefaultRules()

	assert.False(t, rules.ReadyToPublish(store.NewDraft()))
	assert.False(t, rules.MatchReady(store.NewMatch()))

	d := store.SampleBanningDraft(DefaultMapPool)
	assert.False(t, rules.ReadyToPublish(d), "map not decided")
	d.Map = "de_nuke"
	assert.True(t, rules.ReadyToPublish(d))
	d.PublishInProgress = true
	assert.True(t, rules.ReadyToPublish(d), "lock fields are ignored")

	m := store.SamplePublishedMatch(DefaultMapPool, "de_nuke", testNow)
	assert.True(t, rules.MatchReady(m))
	m.State = store.StateLive
	assert.False(t, rules.MatchReady(m))
}

func TestClaimLock(t *testing.T) {
	ttl := time.Minute
	fresh := testNow.Add(-10 * time.Second)
	stale := testNow.Add(-2 * time.Minute)

	token, ok := ClaimLock(false, nil, testNow, ttl)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok = ClaimLock(true, &fresh, testNow, ttl)
	assert.False(t, ok)

	other, ok := ClaimLock(true, &stale, testNow, ttl)
	assert.True(t, ok)
	assert.NotEqual(t, token, other)

	_, ok = ClaimLock(true, &stale, testNow, 0)
	assert.False(t, ok, "zero ttl never reclaims")

	_, ok = ClaimLock(true, nil, testNow, ttl)
	assert.True(t, ok, "held lock without a timestamp is reclaimable")
}

func TestEdge(t *testing.T) {
	var e Edge

	assert.False(t, e.Observe(false))
	assert.True(t, e.Observe(true))
	assert.False(t, e.Observe(true))
	assert.False(t, e.Observe(false))
	assert.True(t, e.Observe(true))
}

func TestEdge_ConcurrentObserversSeeOneRise(t *testing.T) {
	var e Edge
	var wg sync.WaitGroup
	var mu sync.Mutex
	rises := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if e.Observe(true) {
				mu.Lock()
				rises++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, rises)
}

func TestIsValidation(t *testing.T) {
	assert.True(t, IsValidation(ErrNotYourTurn))
	assert.True(t, IsValidation(fmt.Errorf("pick failed: %w", ErrTeamFull)))
	assert.False(t, IsValidation(ErrTooEarly))
	assert.False(t, IsValidation(store.ErrConflict))
	assert.False(t, IsValidation(nil))
}
