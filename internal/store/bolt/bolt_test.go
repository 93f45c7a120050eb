package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourneyforge/livebracket/internal/bracket"
	"github.com/tourneyforge/livebracket/internal/store"
	"github.com/tourneyforge/livebracket/internal/system"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "brackets.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltLoadMissingReturnsNotFound(t *testing.T) {
	s := openTemp(t)
	_, err := s.LoadBracketState(context.Background(), store.BracketKey{TournamentID: 1, BracketID: 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBoltSaveLoadRoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	key := store.BracketKey{TournamentID: 7, BracketID: 3}
	snap := &store.StoredBracket{
		SystemID:      2,
		EntrantsOrder: []uint64{1, 2, 3, 4, 5, 6, 7, 8},
		Matches: []bracket.Match{
			{Entrants: [2]bracket.EntrantSpot{bracket.Entrant(1), bracket.Entrant(2)}},
			{Entrants: [2]bracket.EntrantSpot{bracket.Tbd(), bracket.Empty()}},
		},
	}
	require.NoError(t, s.SaveBracketState(ctx, key, snap))

	got, err := s.LoadBracketState(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, snap.SystemID, got.SystemID)
	assert.Equal(t, snap.EntrantsOrder, got.EntrantsOrder)
	assert.Equal(t, snap.Matches, got.Matches)
}

func TestBoltBracketExistsTracksSpecNotSnapshot(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	key := store.BracketKey{TournamentID: 7, BracketID: 3}

	exists, err := s.BracketExists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists, "snapshot-less, spec-less bracket must not exist")

	require.NoError(t, s.SaveBracketState(ctx, key, &store.StoredBracket{SystemID: 1}))
	exists, err = s.BracketExists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists, "a live snapshot alone does not register a bracket")

	require.NoError(t, s.SaveBracketSpec(ctx, key, &store.BracketSpec{
		SystemID:      1,
		EntrantsOrder: []uint64{1, 2, 3, 4},
	}))
	exists, err = s.BracketExists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBoltSpecSaveLoadRoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	key := store.BracketKey{TournamentID: 4, BracketID: 9}
	spec := &store.BracketSpec{
		SystemID:      2,
		Options:       system.Options{"third_place_match": system.BoolOption(true)},
		EntrantsOrder: []uint64{1, 2, 3, 4, 5, 6, 7, 8},
	}
	require.NoError(t, s.SaveBracketSpec(ctx, key, spec))

	got, err := s.LoadBracketSpec(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, spec.SystemID, got.SystemID)
	assert.Equal(t, spec.Options, got.Options)
	assert.Equal(t, spec.EntrantsOrder, got.EntrantsOrder)
}

func TestBoltLoadSpecMissingReturnsNotFound(t *testing.T) {
	s := openTemp(t)
	_, err := s.LoadBracketSpec(context.Background(), store.BracketKey{TournamentID: 1, BracketID: 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBoltSeparatesTournamentBuckets(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	a := store.BracketKey{TournamentID: 1, BracketID: 1}
	b := store.BracketKey{TournamentID: 2, BracketID: 1}
	require.NoError(t, s.SaveBracketSpec(ctx, a, &store.BracketSpec{SystemID: 1}))

	exists, err := s.BracketExists(ctx, b)
	require.NoError(t, err)
	assert.False(t, exists)
}
