/* external_test.go
 * Contains unit tests for external.go, steam.go and matchzy.go using httptest
 * Authors: Zachary Bower
 */

package external

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"inhouse-bot/api/store"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// region DatHostClient

// TestSendCommand_Success tests the request shape of a console command
func TestSendCommand_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/0.1/game-servers/server-1/console", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user@example.com", user)
		assert.Equal(t, "hunter2", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, `matchzy_loadmatch_url "http://x/api/match-config"`, r.PostForm.Get("line"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewDatHostClient(server.URL+"/", "user@example.com", "hunter2")
	err := client.SendCommand(context.Background(), "server-1", LoadMatchCommand("http://x/api/match-config"))

	assert.NoError(t, err)
}

// TestSendCommand_Unauthenticated tests that 401 and 403 are classified as auth failures
func TestSendCommand_Unauthenticated(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte("bad credentials"))
		}))

		err := NewDatHostClient(server.URL, "u", "p").SendCommand(context.Background(), "server-1", "status")
		server.Close()

		var cmdErr *CommandError
		require.True(t, errors.As(err, &cmdErr))
		assert.Equal(t, status, cmdErr.StatusCode)
		assert.Equal(t, "bad credentials", cmdErr.Body)
		assert.True(t, IsUnauthenticated(err))
	}
}

// TestSendCommand_ServerError tests that other statuses are plain failures
func TestSendCommand_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewDatHostClient(server.URL, "u", "p").SendCommand(context.Background(), "server-1", "status")

	assert.Error(t, err)
	assert.False(t, IsUnauthenticated(err))
}

// TestSendCommand_Timeout tests that the caller's context bounds the request
func TestSendCommand_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := NewDatHostClient(server.URL, "u", "p").SendCommand(ctx, "server-1", "status")

	assert.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestSendCommand_MissingServer tests that an empty server id is rejected before any request
func TestSendCommand_MissingServer(t *testing.T) {
	err := NewDatHostClient("http://127.0.0.1:0", "u", "p").SendCommand(context.Background(), "", "status")
	assert.Error(t, err)
}

// TestReadBody_Gzip tests handling of gzip-encoded responses
func TestReadBody_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	gzWriter.Write([]byte("compressed"))
	gzWriter.Close()

	response := &http.Response{
		Header: http.Header{"Content-Encoding": []string{"gzip"}},
		Body:   io.NopCloser(&buf),
	}

	body, err := readBody(response)
	require.NoError(t, err)
	assert.Equal(t, "compressed", string(body))
}

// endregion

// region SteamResolver

func steamServer(t *testing.T, players map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ISteamUser/GetPlayerSummaries/v2/", r.URL.Path)
		assert.Equal(t, "steam-key", r.URL.Query().Get("key"))

		var entries []string
		for _, id := range strings.Split(r.URL.Query().Get("steamids"), ",") {
			if name, ok := players[id]; ok {
				entries = append(entries, `{"steamid":"`+id+`","personaname":"`+name+`"}`)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":{"players":[` + strings.Join(entries, ",") + `]}}`))
	}))
}

// TestSteamResolver_ResolvesAll tests a lookup where every id is known
func TestSteamResolver_ResolvesAll(t *testing.T) {
	server := steamServer(t, map[string]string{"1": "alice", "2": "bob"})
	defer server.Close()

	names, err := NewSteamResolver(server.URL, "steam-key").ResolveNames(context.Background(), []string{"1", "2", "1"})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1": "alice", "2": "bob"}, names)
}

// TestSteamResolver_Missing tests that unknown ids are reported rather than dropped
func TestSteamResolver_Missing(t *testing.T) {
	server := steamServer(t, map[string]string{"1": "alice"})
	defer server.Close()

	_, err := NewSteamResolver(server.URL, "steam-key").ResolveNames(context.Background(), []string{"1", "2", "3"})

	var missing *MissingPlayersError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"2", "3"}, missing.PlayerIDs)
	assert.True(t, IsMissingPlayers(err))
}

// TestSteamResolver_HTTPError tests that a failed request is a hard error, not missing players
func TestSteamResolver_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewSteamResolver(server.URL, "steam-key").ResolveNames(context.Background(), []string{"1"})

	assert.Error(t, err)
	assert.False(t, IsMissingPlayers(err))
}

// TestStaticResolver tests the fixed map resolver with and without the id fallback
func TestStaticResolver(t *testing.T) {
	r := StaticResolver{Names: map[string]string{"1": "alice"}}

	_, err := r.ResolveNames(context.Background(), []string{"1", "2"})
	assert.True(t, IsMissingPlayers(err))

	r.UseIDFallback = true
	names, err := r.ResolveNames(context.Background(), []string{"1", "2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1": "alice", "2": "2"}, names)
}

// endregion

// region match config

func sampleNames() map[string]string {
	names := make(map[string]string)
	for _, p := range store.SamplePlayers(10) {
		names[p] = "name-" + p
	}
	return names
}

// TestBuildMatchConfig tests the json shape handed to the plugin
func TestBuildMatchConfig(t *testing.T) {
	m := store.SamplePublishedMatch([]string{"de_nuke", "de_mirage"}, "de_mirage", time.Unix(1700000000, 0))

	cfg, err := BuildMatchConfig(m, sampleNames(), "1700000000")

	require.NoError(t, err)
	assert.Equal(t, "1700000000", cfg.MatchID)
	assert.Equal(t, 1, cfg.NumMaps)
	assert.Equal(t, []string{"de_mirage"}, cfg.MapList)
	assert.Equal(t, "team_name-p1", cfg.Team1.Name)
	assert.Equal(t, "team_name-p2", cfg.Team2.Name)
	assert.Len(t, cfg.Team1.Players, 5)
	assert.Equal(t, "name-p3", cfg.Team1.Players["p3"])
	assert.Equal(t, "name-p10", cfg.Team2.Players["p10"])
}

// TestBuildMatchConfig_MissingName tests that a partial roster is refused
func TestBuildMatchConfig_MissingName(t *testing.T) {
	m := store.SamplePublishedMatch([]string{"de_nuke"}, "de_nuke", time.Now())
	names := sampleNames()
	delete(names, "p4")

	_, err := BuildMatchConfig(m, names, "1")

	var missing *MissingPlayersError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"p4"}, missing.PlayerIDs)
}

// TestMatchConfigURL tests the versioned config url
func TestMatchConfigURL(t *testing.T) {
	m := store.SamplePublishedMatch([]string{"de_nuke"}, "de_nuke", time.Unix(1700000000, 0))

	assert.Equal(t, "https://inhouse.example.com/api/match-config?v=1700000000", MatchConfigURL("https://inhouse.example.com/", m))
	assert.Equal(t, "https://inhouse.example.com/api/match-config", MatchConfigURL("https://inhouse.example.com", store.NewMatch()))
}

// TestRosterIDs tests that both teams are listed
func TestRosterIDs(t *testing.T) {
	m := store.SamplePublishedMatch([]string{"de_nuke"}, "de_nuke", time.Now())
	assert.ElementsMatch(t, store.SamplePlayers(10), RosterIDs(m))
}

// endregion
