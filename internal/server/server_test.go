package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourneyforge/livebracket/internal/auth"
	"github.com/tourneyforge/livebracket/internal/live"
	"github.com/tourneyforge/livebracket/internal/session"
	"github.com/tourneyforge/livebracket/internal/store"
	"github.com/tourneyforge/livebracket/internal/store/memory"
	"github.com/tourneyforge/livebracket/internal/system"
	"github.com/tourneyforge/livebracket/internal/wire"
)

// newTestServer registers a bracket (spec only, no live snapshot yet)
// so tests exercise the lazy-creation path: the first subscription has
// to lay out the initial matches itself via Acquire's fresh closure.
func newTestServer(t *testing.T) (*httptest.Server, store.BracketKey) {
	t.Helper()
	st := memory.New()
	sys, ok := system.Default().Get(1)
	require.True(t, ok)
	key := store.BracketKey{TournamentID: 1, BracketID: 1}
	require.NoError(t, st.SaveBracketSpec(context.Background(), key, &store.BracketSpec{
		SystemID:      sys.ID(),
		Options:       sys.DefaultOptions(),
		EntrantsOrder: []uint64{1, 2, 3, 4},
	}))

	reg := live.NewRegistry(system.Default(), st, "memory", live.Config{}, nil, nil)
	a := auth.New([]byte("test-key"), auth.HS256, 0, nil, nil)
	srv := New(reg, st, a, session.Config{}, nil, nil)
	return httptest.NewServer(srv.Handler()), key
}

func TestHealthzReturnsOK(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMatchesMissingBracketReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v3/tournaments/999/brackets/1/matches")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMatchesNonUpgradeReturns426(t *testing.T) {
	srv, key := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v3/tournaments/" +
		strconv.FormatUint(key.TournamentID, 10) + "/brackets/" + strconv.FormatUint(key.BracketID, 10) + "/matches")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestMatchesUpgradesAndStreamsSyncState(t *testing.T) {
	srv, key := newTestServer(t)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v3/tournaments/" +
		strconv.FormatUint(key.TournamentID, 10) + "/brackets/" + strconv.FormatUint(key.BracketID, 10) + "/matches"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	evt, err := wire.DecodeEvent(payload)
	require.NoError(t, err)
	snap, ok := evt.(wire.SyncStateEvent)
	require.True(t, ok, "expected SyncStateEvent, got %T", evt)
	assert.Len(t, snap.Matches, 3, "fresh layout for 4 entrants in single elimination")
}

