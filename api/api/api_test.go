/* api_test.go
 * Contains unit tests for api.go, draft.go, publish.go and start.go - testing all public API methods against the
 * in-memory store
 * Authors: Zachary Bower
 */

package api

import (
	"context"
	"errors"
	"inhouse-bot/api/external"
	"inhouse-bot/api/logic"
	"inhouse-bot/api/store"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

var banSequence = []struct {
	leader  string
	mapName string
}{
	{"p1", "de_ancient"},
	{"p1", "de_anubis"},
	{"p2", "de_dust2"},
	{"p2", "de_inferno"},
	{"p1", "de_nuke"},
	{"p2", "de_train"},
}

// Helper that plays a draft from an empty queue to a decided map. p1 and p2 are the leaders
func playToDecidedMap(t *testing.T, a *API) {
	t.Helper()
	ctx := context.Background()

	for _, p := range store.SamplePlayers(10) {
		_, err := a.JoinQueue(ctx, p)
		require.NoError(t, err)
	}

	a.Now = func() time.Time { return testNow.Add(time.Minute) }
	d, err := a.SelectLeaders(ctx)
	require.NoError(t, err)
	require.Equal(t, store.StateDraftingTeams, d.State)

	for _, pick := range []string{"p3", "p4", "p5", "p6", "p7", "p8", "p9", "p10"} {
		d, err = a.PickPlayer(ctx, d.TeamFor(d.Turn).Leader(), pick)
		require.NoError(t, err)
	}
	require.Equal(t, store.StateBanningMap, d.State)

	for _, ban := range banSequence {
		d, err = a.BanMap(ctx, ban.leader, ban.mapName)
		require.NoError(t, err)
	}
	require.Equal(t, "de_mirage", d.Map)
}

// Helper that strips the fields the store assigns so documents can be compared with their initial shape
func normalizeDraft(d store.Draft) store.Draft {
	d.ID, d.Version, d.UpdatedAt = "", 0, time.Time{}
	return d
}

func normalizeMatch(m store.Match) store.Match {
	m.ID, m.Version, m.UpdatedAt = "", 0, time.Time{}
	return m
}

// region NewAPI tests

func TestNewAPI_Validation(t *testing.T) {
	_, err := NewAPI(nil, nil, nil, DefaultConfig(), logic.DefaultRules(), nil)
	assert.Error(t, err)

	rules := logic.DefaultRules()
	rules.QueueSize = 9
	_, err = NewAPI(store.NewMemoryStore(), nil, nil, DefaultConfig(), rules, nil)
	assert.Error(t, err)

	rules = logic.DefaultRules()
	rules.MapPool = nil
	_, err = NewAPI(store.NewMemoryStore(), nil, nil, DefaultConfig(), rules, nil)
	assert.Error(t, err)

	a, err := NewAPI(store.NewMemoryStore(), nil, nil, Config{}, logic.DefaultRules(), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultCommandTimeout, a.Config.CommandTimeout)
}

// endregion

// region draft tests

func TestGetDraft_CreatesOnFirstAccess(t *testing.T) {
	s := store.NewMemoryStore()
	a := NewTestAPI(s, &MockCommandSender{}, testNow)

	d, err := a.GetDraft(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.StateAwaitingPlayers, d.State)

	stored, found, err := s.GetDraft(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, store.NewDraft(), normalizeDraft(stored))
}

func TestJoinQueue_ConcurrentJoinsFillQueueOnce(t *testing.T) {
	a := NewTestAPI(store.NewMemoryStore(), &MockCommandSender{}, testNow)
	scheduler := &MockScheduler{}
	a.SetLeaderScheduler(scheduler)
	ctx := context.Background()

	// 12 distinct players race for 10 places
	players := append(store.SamplePlayers(10), "p11", "p12")
	var wg sync.WaitGroup
	var mu sync.Mutex
	capacityErrors := 0
	for _, p := range players {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			_, err := a.JoinQueue(ctx, p)
			if err != nil {
				assert.ErrorIs(t, err, logic.ErrCapacityExceeded)
				mu.Lock()
				capacityErrors++
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()

	d, err := a.GetDraft(ctx)
	require.NoError(t, err)
	assert.Len(t, d.Queue, 10)
	assert.Equal(t, store.StateSelectingLeaders, d.State)
	assert.Equal(t, 2, capacityErrors)
	assert.Equal(t, []time.Time{testNow.Add(logic.DefaultLeaderSelectionDelay)}, scheduler.Times())
}

func TestJoinQueue_Idempotent(t *testing.T) {
	a := NewTestAPI(store.NewMemoryStore(), &MockCommandSender{}, testNow)
	ctx := context.Background()

	_, err := a.JoinQueue(ctx, "p1")
	require.NoError(t, err)
	d, err := a.JoinQueue(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, []string{"p1"}, d.Queue)
}

func TestLeaveQueue(t *testing.T) {
	a := NewTestAPI(store.NewMemoryStore(), &MockCommandSender{}, testNow)
	ctx := context.Background()

	_, _ = a.JoinQueue(ctx, "p1")
	_, _ = a.JoinQueue(ctx, "p2")
	d, err := a.LeaveQueue(ctx, "p1")

	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, d.Queue)
}

func TestSelectLeaders_TooEarlyThenSucceeds(t *testing.T) {
	a := NewTestAPI(store.NewMemoryStore(), &MockCommandSender{}, testNow)
	ctx := context.Background()
	for _, p := range store.SamplePlayers(10) {
		_, err := a.JoinQueue(ctx, p)
		require.NoError(t, err)
	}

	_, err := a.SelectLeaders(ctx)
	assert.ErrorIs(t, err, logic.ErrTooEarly)

	a.Now = func() time.Time { return testNow.Add(logic.DefaultLeaderSelectionDelay) }
	d, err := a.SelectLeaders(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, d.Team1.Players)
	assert.Equal(t, []string{"p2"}, d.Team2.Players)
	assert.Len(t, d.Unassigned, 8)

	// A second trigger is a no-op
	again, err := a.SelectLeaders(ctx)
	require.NoError(t, err)
	assert.Equal(t, d.Team1.Players, again.Team1.Players)
	assert.Equal(t, d.Unassigned, again.Unassigned)
}

func TestPickPlayer_ValidationLeavesStateUnchanged(t *testing.T) {
	a := NewTestAPI(store.NewMemoryStore(), &MockCommandSender{}, testNow)
	ctx := context.Background()
	for _, p := range store.SamplePlayers(10) {
		_, _ = a.JoinQueue(ctx, p)
	}
	a.Now = func() time.Time { return testNow.Add(time.Hour) }
	before, err := a.SelectLeaders(ctx)
	require.NoError(t, err)

	_, err = a.PickPlayer(ctx, "p2", "p3")
	assert.ErrorIs(t, err, logic.ErrNotYourTurn)
	assert.True(t, logic.IsValidation(err))

	after, err := a.GetDraft(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Unassigned, after.Unassigned)
	assert.Equal(t, before.Turn, after.Turn)
}

func TestBanMap_OutOfTurnDoesNotMutate(t *testing.T) {
	d := store.SampleBanningDraft(logic.DefaultMapPool)
	s := store.NewSeededMemoryStore(&d, nil)
	a := NewTestAPI(s, &MockCommandSender{}, testNow)

	_, err := a.BanMap(context.Background(), "p2", "de_nuke")
	assert.ErrorIs(t, err, logic.ErrWrongTurn)

	after, _, _ := s.GetDraft(context.Background())
	assert.Empty(t, after.BannedMaps)
}

// endregion

// region publish tests

func TestPublish_NotReady(t *testing.T) {
	a := NewTestAPI(store.NewMemoryStore(), &MockCommandSender{}, testNow)

	res := a.Publish(context.Background())
	assert.Equal(t, PublishNotReady, res.Status)
}

func TestPublish_CopiesDraftAndGoesLive(t *testing.T) {
	s := store.NewMemoryStore()
	a := NewTestAPI(s, &MockCommandSender{}, testNow)
	playToDecidedMap(t, a)

	res := a.Publish(context.Background())
	require.Equal(t, PublishPublished, res.Status, "%v", res.Err)

	d, _, _ := s.GetDraft(context.Background())
	assert.Equal(t, store.StateLive, d.State)
	assert.False(t, d.PublishInProgress)
	assert.Empty(t, d.PublishLockToken)
	require.NotNil(t, d.PublishedAt)

	m, found, _ := s.GetMatch(context.Background())
	require.True(t, found)
	assert.Equal(t, store.StateBanningMap, m.State)
	assert.Equal(t, "de_mirage", m.Map)
	assert.Equal(t, d.Team1.Players, m.Team1.Players)
	assert.Empty(t, m.Queue)
	assert.True(t, a.Rules.MatchReady(m))

	// Exactly once
	assert.Equal(t, PublishNotReady, a.Publish(context.Background()).Status)
}

func TestPublish_LockedWhileClaimFresh(t *testing.T) {
	d := store.SampleLiveDraft(logic.DefaultMapPool, "de_mirage")
	d.State = store.StateBanningMap
	lockedAt := testNow.Add(-10 * time.Second)
	d.PublishInProgress = true
	d.PublishLockedAt = &lockedAt
	d.PublishLockToken = "someone-else"
	a := NewTestAPI(store.NewSeededMemoryStore(&d, nil), &MockCommandSender{}, testNow)

	assert.Equal(t, PublishLocked, a.Publish(context.Background()).Status)
}

func TestPublish_ReclaimsStaleLock(t *testing.T) {
	d := store.SampleLiveDraft(logic.DefaultMapPool, "de_mirage")
	d.State = store.StateBanningMap
	lockedAt := testNow.Add(-time.Hour)
	d.PublishInProgress = true
	d.PublishLockedAt = &lockedAt
	d.PublishLockToken = "crashed"
	a := NewTestAPI(store.NewSeededMemoryStore(&d, nil), &MockCommandSender{}, testNow)

	assert.Equal(t, PublishPublished, a.Publish(context.Background()).Status)
}

func TestPublish_FailureReleasesLockAndRecordsError(t *testing.T) {
	d := store.SampleLiveDraft(logic.DefaultMapPool, "de_mirage")
	d.State = store.StateBanningMap
	mem := store.NewSeededMemoryStore(&d, nil)
	// Call 2 is the match write
	failing := &FailingStore{Interface: mem, BeforeTransaction: FailCall(2, errors.New("disk full"))}
	a := NewTestAPI(failing, &MockCommandSender{}, testNow)

	res := a.Publish(context.Background())
	assert.Equal(t, PublishFailed, res.Status)
	assert.ErrorContains(t, res.Err, "disk full")

	after, _, _ := mem.GetDraft(context.Background())
	assert.False(t, after.PublishInProgress)
	assert.Empty(t, after.PublishLockToken)
	assert.Contains(t, after.PublishError, "disk full")
	assert.Nil(t, after.PublishedAt)
	assert.Equal(t, store.StateBanningMap, after.State)
	_, found, _ := mem.GetMatch(context.Background())
	assert.False(t, found)

	// A retry after the fault clears succeeds and clears the error
	failing.BeforeTransaction = nil
	assert.Equal(t, PublishPublished, a.Publish(context.Background()).Status)
	after, _, _ = mem.GetDraft(context.Background())
	assert.Empty(t, after.PublishError)
}

func TestPublish_CancelDuringPublishKeepsReset(t *testing.T) {
	d := store.SampleLiveDraft(logic.DefaultMapPool, "de_mirage")
	d.State = store.StateBanningMap
	mem := store.NewSeededMemoryStore(&d, nil)
	admin := NewTestAPI(mem, &MockCommandSender{}, testNow)

	// The admin cancel commits after the claim and before the match write
	failing := &FailingStore{Interface: mem, BeforeTransaction: func(call int) error {
		if call == 2 {
			return admin.Cancel(context.Background())
		}
		return nil
	}}
	commands := &MockCommandSender{}
	a := NewTestAPI(failing, commands, testNow)

	assert.Equal(t, PublishLocked, a.Publish(context.Background()).Status)

	after, _, _ := mem.GetDraft(context.Background())
	m, _, _ := mem.GetMatch(context.Background())
	assert.Equal(t, store.NewDraft(), normalizeDraft(after))
	assert.Equal(t, store.NewMatch(), normalizeMatch(m))
	assert.False(t, a.Rules.MatchReady(m))

	assert.NotEqual(t, StartStarted, a.StartMatchIfReady(context.Background()).Status)
	assert.Zero(t, commands.Calls())
}

func TestPublish_RetryKeepsStartedMatch(t *testing.T) {
	d := store.SampleLiveDraft(logic.DefaultMapPool, "de_mirage")
	d.State = store.StateBanningMap
	mem := store.NewSeededMemoryStore(&d, nil)
	// Call 3 marks the draft live
	failing := &FailingStore{Interface: mem, BeforeTransaction: FailCall(3, errors.New("timeout"))}
	commands := &MockCommandSender{}
	a := NewTestAPI(failing, commands, testNow)
	ctx := context.Background()

	res := a.Publish(ctx)
	require.Equal(t, PublishFailed, res.Status)
	after, _, _ := mem.GetDraft(ctx)
	require.Nil(t, after.PublishedAt)
	require.True(t, a.Rules.ReadyToPublish(after))

	// The match was written, so the server can start before the draft is live
	require.Equal(t, StartStarted, a.StartMatchIfReady(ctx).Status)
	require.Equal(t, 1, commands.Calls())
	started, _, _ := mem.GetMatch(ctx)
	require.Equal(t, store.StateLive, started.State)

	failing.BeforeTransaction = nil
	a.Now = func() time.Time { return testNow.Add(time.Minute) }
	require.Equal(t, PublishPublished, a.Publish(ctx).Status)

	m, _, _ := mem.GetMatch(ctx)
	assert.Equal(t, store.StateLive, m.State)
	assert.NotNil(t, m.StartedAt)
	assert.Equal(t, started.MatchConfigURL, m.MatchConfigURL)

	after, _, _ = mem.GetDraft(ctx)
	assert.Equal(t, store.StateLive, after.State)
	require.NotNil(t, after.PublishedAt)
	assert.True(t, after.PublishedAt.Equal(*m.PublishedAt))

	assert.Equal(t, StartLocked, a.StartMatchIfReady(ctx).Status)
	assert.Equal(t, 1, commands.Calls())
}

func TestPublish_KeepsLiveMatchForSameDraft(t *testing.T) {
	d := store.SampleLiveDraft(logic.DefaultMapPool, "de_mirage")
	d.State = store.StateBanningMap
	m := store.SamplePublishedMatch(logic.DefaultMapPool, "de_mirage", testNow)
	m.State = store.StateLive
	startedAt := testNow.Add(time.Minute)
	m.StartedAt = &startedAt
	mem := store.NewSeededMemoryStore(&d, &m)
	commands := &MockCommandSender{}
	a := NewTestAPI(mem, commands, testNow.Add(2*time.Minute))

	require.Equal(t, PublishPublished, a.Publish(context.Background()).Status)

	after, _, _ := mem.GetMatch(context.Background())
	assert.Equal(t, store.StateLive, after.State)
	assert.NotNil(t, after.StartedAt)
	assert.Equal(t, StartLocked, a.StartMatchIfReady(context.Background()).Status)
	assert.Zero(t, commands.Calls())
}

// endregion

// region start tests

func publishedStore() *store.MemoryStore {
	d := store.SampleLiveDraft(logic.DefaultMapPool, "de_mirage")
	d.PublishedAt = &testNow
	m := store.SamplePublishedMatch(logic.DefaultMapPool, "de_mirage", testNow)
	return store.NewSeededMemoryStore(&d, &m)
}

func TestStartMatchIfReady_NotFound(t *testing.T) {
	a := NewTestAPI(store.NewMemoryStore(), &MockCommandSender{}, testNow)
	assert.Equal(t, StartNotFound, a.StartMatchIfReady(context.Background()).Status)
}

func TestStartMatchIfReady_NotReady(t *testing.T) {
	m := store.NewMatch()
	commands := &MockCommandSender{}
	a := NewTestAPI(store.NewSeededMemoryStore(nil, &m), commands, testNow)

	assert.Equal(t, StartNotReady, a.StartMatchIfReady(context.Background()).Status)
	assert.Equal(t, 0, commands.Calls())
}

func TestStartMatchIfReady_Success(t *testing.T) {
	s := publishedStore()
	commands := &MockCommandSender{}
	a := NewTestAPI(s, commands, testNow)

	res := a.StartMatchIfReady(context.Background())

	require.Equal(t, StartStarted, res.Status, "%v", res.Err)
	wantURL := "https://inhouse.example.com/api/match-config?v=" + "1748800800"
	assert.Equal(t, wantURL, res.ConfigURL)
	assert.Equal(t, []string{`matchzy_loadmatch_url "` + wantURL + `"`}, commands.Commands())

	m, _, _ := s.GetMatch(context.Background())
	assert.Equal(t, store.StateLive, m.State)
	assert.Equal(t, wantURL, m.MatchConfigURL)
	assert.NotNil(t, m.StartedAt)
	assert.False(t, m.StartInProgress)

	// Already live
	assert.Equal(t, StartLocked, a.StartMatchIfReady(context.Background()).Status)
	assert.Equal(t, 1, commands.Calls())
}

func TestStartMatchIfReady_ConcurrentCallsSendOneCommand(t *testing.T) {
	s := publishedStore()
	commands := &MockCommandSender{Delay: 20 * time.Millisecond}
	a := NewTestAPI(s, commands, testNow)

	var wg sync.WaitGroup
	results := make(chan StartStatus, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- a.StartMatchIfReady(context.Background()).Status
		}()
	}
	wg.Wait()
	close(results)

	started := 0
	for status := range results {
		if status == StartStarted {
			started++
		} else {
			assert.Equal(t, StartLocked, status)
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, commands.Calls())

	m, _, _ := s.GetMatch(context.Background())
	assert.Equal(t, store.StateLive, m.State)
	assert.NotEmpty(t, m.MatchConfigURL)
}

func TestStartMatchIfReady_UnauthenticatedReleasesLock(t *testing.T) {
	s := publishedStore()
	commands := &MockCommandSender{Err: &external.CommandError{StatusCode: http.StatusUnauthorized, Body: "nope"}}
	a := NewTestAPI(s, commands, testNow)

	res := a.StartMatchIfReady(context.Background())
	assert.Equal(t, StartUnauthenticated, res.Status)
	assert.Error(t, res.Err)

	m, _, _ := s.GetMatch(context.Background())
	assert.False(t, m.StartInProgress)
	assert.Empty(t, m.StartLockToken)
	assert.Equal(t, store.ReasonUnauthenticated, m.StartErrorReason)
	assert.NotEmpty(t, m.StartError)
	assert.Equal(t, store.StateBanningMap, m.State)

	d, _, _ := s.GetDraft(context.Background())
	assert.False(t, d.StartInProgress)
	assert.Equal(t, m.StartError, d.StartError)

	// Retry once the credentials are fixed
	commands.Err = nil
	assert.Equal(t, StartStarted, a.StartMatchIfReady(context.Background()).Status)
	m, _, _ = s.GetMatch(context.Background())
	assert.Empty(t, m.StartError)
	assert.Empty(t, m.StartErrorReason)
}

func TestStartMatchIfReady_GenericFailure(t *testing.T) {
	s := publishedStore()
	a := NewTestAPI(s, &MockCommandSender{Err: &external.CommandError{StatusCode: 500}}, testNow)

	assert.Equal(t, StartFailed, a.StartMatchIfReady(context.Background()).Status)
	m, _, _ := s.GetMatch(context.Background())
	assert.Equal(t, store.ReasonFailed, m.StartErrorReason)
	assert.False(t, m.StartInProgress)
}

func TestStartMatchIfReady_TimeoutIsFailure(t *testing.T) {
	s := publishedStore()
	a := NewTestAPI(s, &MockCommandSender{Delay: time.Second}, testNow)
	a.Config.CommandTimeout = 20 * time.Millisecond

	res := a.StartMatchIfReady(context.Background())
	assert.Equal(t, StartFailed, res.Status)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)

	m, _, _ := s.GetMatch(context.Background())
	assert.False(t, m.StartInProgress)
	assert.NotEmpty(t, m.StartError)
}

func TestStartMatchIfReady_UnresolvedRosterIsNotReady(t *testing.T) {
	s := publishedStore()
	commands := &MockCommandSender{}
	a := NewTestAPI(s, commands, testNow)
	a.Roster = external.StaticResolver{Names: map[string]string{"p1": "alice"}}

	assert.Equal(t, StartNotReady, a.StartMatchIfReady(context.Background()).Status)
	assert.Equal(t, 0, commands.Calls())

	m, _, _ := s.GetMatch(context.Background())
	assert.False(t, m.StartInProgress)
	assert.Empty(t, m.StartError)
}

// endregion

// region match config tests

func TestMatchConfig(t *testing.T) {
	a := NewTestAPI(store.NewMemoryStore(), &MockCommandSender{}, testNow)
	_, err := a.MatchConfig(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)

	a = NewTestAPI(publishedStore(), &MockCommandSender{}, testNow)
	cfg, err := a.MatchConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"de_mirage"}, cfg.MapList)
	assert.Equal(t, 1, cfg.NumMaps)
	assert.Equal(t, "p3", cfg.Team1.Players["p3"])

	a.Roster = external.StaticResolver{}
	_, err = a.MatchConfig(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

// endregion

// region finalize and cancel tests

func TestRequestFinalize_ConcurrentLeadersResetOnce(t *testing.T) {
	s := publishedStore()
	a := NewTestAPI(s, &MockCommandSender{}, testNow)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	resets := 0
	for _, leader := range []string{"p1", "p2"} {
		wg.Add(1)
		go func(leader string) {
			defer wg.Done()
			_, reset, err := a.RequestFinalize(ctx, leader)
			assert.NoError(t, err)
			if reset {
				mu.Lock()
				resets++
				mu.Unlock()
			}
		}(leader)
	}
	wg.Wait()
	assert.Equal(t, 1, resets)

	// A late duplicate is a no-op against the new cycle
	d, reset, err := a.RequestFinalize(ctx, "p1")
	assert.NoError(t, err)
	assert.False(t, reset)
	assert.Equal(t, store.StateAwaitingPlayers, d.State)
	assert.Empty(t, d.FinalizeBy)
}

func TestRequestFinalize_NonLeaderRejected(t *testing.T) {
	a := NewTestAPI(publishedStore(), &MockCommandSender{}, testNow)

	_, _, err := a.RequestFinalize(context.Background(), "p5")
	assert.ErrorIs(t, err, logic.ErrUnauthorized)
}

func TestCancel_ResetsAndRestartsServer(t *testing.T) {
	s := publishedStore()
	commands := &MockCommandSender{}
	a := NewTestAPI(s, commands, testNow)

	require.NoError(t, a.Cancel(context.Background()))

	d, _, _ := s.GetDraft(context.Background())
	m, _, _ := s.GetMatch(context.Background())
	assert.Equal(t, store.NewDraft(), normalizeDraft(d))
	assert.Equal(t, store.NewMatch(), normalizeMatch(m))
	assert.Equal(t, []string{DefaultCancelCommand}, commands.Commands())
}

func TestCancel_CommandFailureStillResets(t *testing.T) {
	s := publishedStore()
	a := NewTestAPI(s, &MockCommandSender{Err: errors.New("server offline")}, testNow)

	err := a.Cancel(context.Background())
	assert.ErrorIs(t, err, ErrRestartFailed)
	assert.ErrorContains(t, err, "server offline")

	d, _, _ := s.GetDraft(context.Background())
	assert.Equal(t, store.StateAwaitingPlayers, d.State)
}

func TestCancel_ResetFailureSkipsRestart(t *testing.T) {
	s := publishedStore()
	failing := &FailingStore{Interface: s, BeforeTransaction: FailCall(1, errors.New("connection refused"))}
	commands := &MockCommandSender{}
	a := NewTestAPI(failing, commands, testNow)

	err := a.Cancel(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRestartFailed)
	assert.Zero(t, commands.Calls())

	d, _, _ := s.GetDraft(context.Background())
	assert.Equal(t, store.StateLive, d.State)
}

// endregion

// region full scenario

func TestFullMatchLifecycle(t *testing.T) {
	s := store.NewMemoryStore()
	commands := &MockCommandSender{}
	a := NewTestAPI(s, commands, testNow)
	ctx := context.Background()

	playToDecidedMap(t, a)

	require.Equal(t, PublishPublished, a.Publish(ctx).Status)
	start := a.StartMatchIfReady(ctx)
	require.Equal(t, StartStarted, start.Status, "%v", start.Err)
	assert.Equal(t, 1, commands.Calls())
	assert.True(t, strings.HasPrefix(commands.Commands()[0], "matchzy_loadmatch_url"))

	_, reset, err := a.RequestFinalize(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, reset)
	_, reset, err = a.RequestFinalize(ctx, "p2")
	require.NoError(t, err)
	assert.True(t, reset)

	d, _, _ := s.GetDraft(ctx)
	m, _, _ := s.GetMatch(ctx)
	assert.Equal(t, store.NewDraft(), normalizeDraft(d))
	assert.Equal(t, store.NewMatch(), normalizeMatch(m))
}

// endregion
